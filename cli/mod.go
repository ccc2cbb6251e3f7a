// Package cli defines the builder of a command line application made of
// independent modules.
//
// A module declares its commands and their flags without knowing the library
// that parses the command line:
//
//	cmd := builder.SetCommand("verify")
//	cmd.SetDescription("verify a user")
//	cmd.SetFlags(cli.IntFlag{Name: "index", Required: true})
//	cmd.SetAction(func(flags cli.Flags) error {
//		fmt.Printf("verifying user %d\n", flags.Int("index"))
//		return nil
//	})
//
// The value of a flag comes, by order of priority, from the command line, its
// environment variable, a YAML configuration file (see LoadConfig) and its
// default value.
package cli

import "time"

// Builder creates the commands of an application then builds it.
type Builder interface {
	// SetCommand creates a new command with the given name and returns its
	// builder.
	SetCommand(name string) CommandBuilder

	// Build returns the application.
	Build() Application
}

// Application runs a command from the arguments of the process.
type Application interface {
	Run(arguments []string) error
}

// CommandBuilder sets the properties of a command.
type CommandBuilder interface {
	// SetDescription sets the value of the description for this command.
	SetDescription(value string)

	// SetFlags sets the flags for this command.
	SetFlags(...Flag)

	// SetAction sets the action for this command.
	SetAction(Action)

	// SetSubCommand creates a subcommand for this command.
	SetSubCommand(name string) CommandBuilder
}

// Action is executed when its command is invoked.
type Action func(Flags) error

// Flag is the definition of a flag of a command.
type Flag interface {
	// GetName returns the name of the flag, which is the key to read its
	// value.
	GetName() string
}

// Flags gives the values of the flags to an action. A flag that is not
// defined reads as the zero value.
type Flags interface {
	String(name string) string
	StringSlice(name string) []string
	Duration(name string) time.Duration
	Path(name string) string
	Int(name string) int
	Bool(name string) bool
}
