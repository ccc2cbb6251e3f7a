package cli

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Config is the content of a YAML configuration file that maps the name of a
// flag to its value.
//
//	clientaddr: 127.0.0.1:8080
//	refresh: 30s
//	users:
//	  - alice:30
type Config map[string]interface{}

// LoadConfig reads the YAML configuration file. A missing file is an empty
// configuration.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("couldn't read config: %v", err)
	}

	cfg := Config{}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't parse config '%s': %v", path, err)
	}

	return cfg, nil
}

// WithConfig returns flags where the values of the configuration replace the
// ones of the flags that are not explicitly set. Flags that can't tell if they
// are set are always replaced.
func WithConfig(flags Flags, cfg Config) Flags {
	isSet := func(string) bool { return false }

	setter, ok := flags.(interface{ IsSet(string) bool })
	if ok {
		isSet = setter.IsSet
	}

	return configFlags{
		Flags: flags,
		cfg:   cfg,
		isSet: isSet,
	}
}

// configFlags reads the values of the configuration before the ones of the
// command line.
//
// - implements cli.Flags
type configFlags struct {
	Flags

	cfg   Config
	isSet func(string) bool
}

func (f configFlags) lookup(name string) (interface{}, bool) {
	if f.isSet(name) {
		return nil, false
	}

	v, found := f.cfg[name]

	return v, found
}

// String implements cli.Flags.
func (f configFlags) String(name string) string {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.String(name)
	}

	return fmt.Sprint(v)
}

// StringSlice implements cli.Flags.
func (f configFlags) StringSlice(name string) []string {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.StringSlice(name)
	}

	switch values := v.(type) {
	case []interface{}:
		res := make([]string, len(values))
		for i, value := range values {
			res[i] = fmt.Sprint(value)
		}

		return res
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Duration implements cli.Flags. The value of the configuration is parsed as a
// Go duration, for instance 30s.
func (f configFlags) Duration(name string) time.Duration {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.Duration(name)
	}

	d, err := time.ParseDuration(fmt.Sprint(v))
	if err != nil {
		return f.Flags.Duration(name)
	}

	return d
}

// Path implements cli.Flags.
func (f configFlags) Path(name string) string {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.Path(name)
	}

	return fmt.Sprint(v)
}

// Int implements cli.Flags.
func (f configFlags) Int(name string) int {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.Int(name)
	}

	i, ok := v.(int)
	if !ok {
		return f.Flags.Int(name)
	}

	return i
}

// Bool implements cli.Flags.
func (f configFlags) Bool(name string) bool {
	v, found := f.lookup(name)
	if !found {
		return f.Flags.Bool(name)
	}

	b, ok := v.(bool)
	if !ok {
		return f.Flags.Bool(name)
	}

	return b
}
