// Package ucli provides a cli builder implementation based on the urfave/cli
// library.
//
// A builder can name a flag that points to a YAML configuration file. The
// values of the file are then used for the flags that are not set on the
// command line.
package ucli

import (
	"fmt"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/certkv/cli"
	"golang.org/x/xerrors"
)

// Builder is a cli builder that produces a urfave/cli application.
//
// - implements cli.Builder
type Builder struct {
	commands   []*cmdBuilder
	name       string
	action     cli.Action
	flags      []cli.Flag
	configFlag string
}

// NewBuilder returns a builder of an application with the name. The action,
// which can be nil, runs when no command is given. The flags are available to
// every command.
func NewBuilder(name string, action cli.Action, flags ...cli.Flag) cli.Builder {
	return &Builder{
		name:   name,
		action: action,
		flags:  flags,
	}
}

// SetConfigFlag sets the name of the flag of the path to the YAML
// configuration file. The file is read before each action.
func (b *Builder) SetConfigFlag(name string) {
	b.configFlag = name
}

// Build implements cli.Builder.
func (b Builder) Build() cli.Application {
	app := &urfave.App{
		Name:     b.name,
		Action:   makeAction(b.action, b.configFlag),
		Flags:    buildFlags(b.flags),
		Commands: make([]*urfave.Command, len(b.commands)),
	}

	for i, cmd := range b.commands {
		app.Commands[i] = cmd.build(b.configFlag)
	}

	app.Setup()

	return app
}

// SetCommand implements cli.Builder.
func (b *Builder) SetCommand(name string) cli.CommandBuilder {
	cmd := &cmdBuilder{name: name}
	b.commands = append(b.commands, cmd)

	return cmd
}

// cmdBuilder holds the properties of a command until the application is
// built.
//
// - implements cli.CommandBuilder
type cmdBuilder struct {
	name        string
	description string
	action      cli.Action
	flags       []urfave.Flag
	subcommands []*cmdBuilder
}

// SetDescription implements cli.CommandBuilder.
func (b *cmdBuilder) SetDescription(value string) {
	b.description = value
}

// SetFlags implements cli.CommandBuilder. It panics if a flag is of an
// unknown type.
func (b *cmdBuilder) SetFlags(flags ...cli.Flag) {
	b.flags = buildFlags(flags)
}

// SetAction implements cli.CommandBuilder.
func (b *cmdBuilder) SetAction(action cli.Action) {
	b.action = action
}

// SetSubCommand implements cli.CommandBuilder.
func (b *cmdBuilder) SetSubCommand(name string) cli.CommandBuilder {
	sub := &cmdBuilder{name: name}
	b.subcommands = append(b.subcommands, sub)

	return sub
}

func (b *cmdBuilder) build(configFlag string) *urfave.Command {
	cmd := &urfave.Command{
		Name:        b.name,
		Usage:       b.description,
		Action:      makeAction(b.action, configFlag),
		Flags:       b.flags,
		Subcommands: make([]*urfave.Command, len(b.subcommands)),
	}

	for i, sub := range b.subcommands {
		cmd.Subcommands[i] = sub.build(configFlag)
	}

	return cmd
}

func buildFlags(flags []cli.Flag) []urfave.Flag {
	res := make([]urfave.Flag, len(flags))

	for i, f := range flags {
		res[i] = buildFlag(f)
	}

	return res
}

func buildFlag(f cli.Flag) urfave.Flag {
	switch e := f.(type) {
	case cli.StringFlag:
		return &urfave.StringFlag{
			Name:     e.Name,
			Usage:    e.Usage,
			EnvVars:  envVars(e.Env),
			Required: e.Required,
			Value:    e.Value,
		}
	case cli.StringSliceFlag:
		return &urfave.StringSliceFlag{
			Name:     e.Name,
			Usage:    e.Usage,
			EnvVars:  envVars(e.Env),
			Required: e.Required,
			Value:    urfave.NewStringSlice(e.Value...),
		}
	case cli.DurationFlag:
		return &urfave.DurationFlag{
			Name:     e.Name,
			Usage:    e.Usage,
			EnvVars:  envVars(e.Env),
			Required: e.Required,
			Value:    e.Value,
		}
	case cli.IntFlag:
		return &urfave.IntFlag{
			Name:     e.Name,
			Usage:    e.Usage,
			EnvVars:  envVars(e.Env),
			Required: e.Required,
			Value:    e.Value,
		}
	case cli.BoolFlag:
		return &urfave.BoolFlag{
			Name:     e.Name,
			Usage:    e.Usage,
			EnvVars:  envVars(e.Env),
			Required: e.Required,
			Value:    e.Value,
		}
	default:
		panic(fmt.Sprintf("flag type '%T' not supported", f))
	}
}

func envVars(name string) []string {
	if name == "" {
		return nil
	}

	return []string{name}
}

// makeAction transforms a cli.Action to its urfave form. When the config flag
// is set, the action receives the flags merged with the configuration file.
func makeAction(action cli.Action, configFlag string) urfave.ActionFunc {
	if action == nil {
		return nil
	}

	return func(ctx *urfave.Context) error {
		path := ""
		if configFlag != "" {
			path = ctx.Path(configFlag)
		}

		if path == "" {
			return action(ctx)
		}

		cfg, err := cli.LoadConfig(path)
		if err != nil {
			return xerrors.Errorf("couldn't load config: %v", err)
		}

		return action(cli.WithConfig(ctx, cfg))
	}
}
