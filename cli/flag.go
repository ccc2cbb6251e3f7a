package cli

import "time"

// The flags take their value from the command line, then from the environment
// variable named by Env if any, and finally from the default value.

// StringFlag is a flag parsed as a string.
//
// - implements cli.Flag
type StringFlag struct {
	Name     string
	Usage    string
	Env      string
	Required bool
	Value    string
}

// GetName implements cli.Flag.
func (f StringFlag) GetName() string {
	return f.Name
}

// StringSliceFlag is a flag that can be repeated. Every occurrence appends a
// string to the list.
//
// - implements cli.Flag
type StringSliceFlag struct {
	Name     string
	Usage    string
	Env      string
	Required bool
	Value    []string
}

// GetName implements cli.Flag.
func (f StringSliceFlag) GetName() string {
	return f.Name
}

// DurationFlag is a flag parsed as a Go duration like 1m30s.
//
// - implements cli.Flag
type DurationFlag struct {
	Name     string
	Usage    string
	Env      string
	Required bool
	Value    time.Duration
}

// GetName implements cli.Flag.
func (f DurationFlag) GetName() string {
	return f.Name
}

// IntFlag is a flag parsed as an integer.
//
// - implements cli.Flag
type IntFlag struct {
	Name     string
	Usage    string
	Env      string
	Required bool
	Value    int
}

// GetName implements cli.Flag.
func (f IntFlag) GetName() string {
	return f.Name
}

// BoolFlag is a flag set to true when present.
//
// - implements cli.Flag
type BoolFlag struct {
	Name     string
	Usage    string
	Env      string
	Required bool
	Value    bool
}

// GetName implements cli.Flag.
func (f BoolFlag) GetName() string {
	return f.Name
}
