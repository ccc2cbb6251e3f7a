package node

import (
	"math"
	"time"
)

// FlagSet holds the values of the flags of a command while they travel from
// the client to the daemon. A value is either the one read from the command
// line, or its JSON decoding where numbers are float64 and lists are
// []interface{}. A value of an unexpected type reads as the zero value.
//
// - implements cli.Flags
type FlagSet map[string]interface{}

// String implements cli.Flags.
func (fset FlagSet) String(name string) string {
	v, _ := fset[name].(string)
	return v
}

// Path implements cli.Flags.
func (fset FlagSet) Path(name string) string {
	return fset.String(name)
}

// StringSlice implements cli.Flags. Elements of a decoded list that are not
// strings are skipped.
func (fset FlagSet) StringSlice(name string) []string {
	switch v := fset[name].(type) {
	case []string:
		return v
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, elem := range v {
			if str, ok := elem.(string); ok {
				values = append(values, str)
			}
		}

		return values
	}

	return nil
}

// Duration implements cli.Flags. A decoded duration is a number of
// nanoseconds.
func (fset FlagSet) Duration(name string) time.Duration {
	switch v := fset[name].(type) {
	case time.Duration:
		return v
	case float64:
		return time.Duration(v)
	}

	return 0
}

// Int implements cli.Flags. A decoded number with a fractional part is not an
// integer.
func (fset FlagSet) Int(name string) int {
	switch v := fset[name].(type) {
	case int:
		return v
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}

	return 0
}

// Bool implements cli.Flags.
func (fset FlagSet) Bool(name string) bool {
	v, _ := fset[name].(bool)
	return v
}
