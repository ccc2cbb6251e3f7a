// This file contains the implementation of a CLI builder.

package node

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/ucli"
	"golang.org/x/xerrors"
)

const (
	// AppName is the name of the application.
	AppName = "certkv"

	// ConfigFile is the name of the optional YAML file of the config folder
	// that provides the values of the start flags.
	ConfigFile = "config.yml"

	defaultConfigDir = ".certkv"
)

// CLIBuilder builds the application of a node. The commands made from action
// templates run on the daemon started by the start command.
//
// - implements node.Builder
// - implements cli.Builder
type CLIBuilder struct {
	cli.Builder

	daemonFactory DaemonFactory
	injector      Injector
	actions       *actionMap
	startFlags    []cli.Flag
	inits         []Initializer

	// The daemon stops on SIGINT or SIGTERM, unless the channel is provided,
	// in which case the caller decides when to stop it.
	notify bool
	sigs   chan os.Signal
}

// NewBuilder returns a new empty builder.
func NewBuilder(inits ...Initializer) *CLIBuilder {
	return NewBuilderWithCfg(nil, nil, inits...)
}

// NewBuilderWithCfg returns a new empty builder that stops the daemon when the
// channel receives a value, and writes the outputs of the commands to the
// writer. Nil values select the signals of the process and the standard
// output.
func NewBuilderWithCfg(sigs chan os.Signal, out io.Writer, inits ...Initializer) *CLIBuilder {
	if out == nil {
		out = os.Stdout
	}

	notify := sigs == nil
	if notify {
		sigs = make(chan os.Signal, 1)
	}

	injector := NewInjector()
	actions := &actionMap{}

	builder := ucli.NewBuilder(AppName, nil, cli.StringFlag{
		Name:  "config",
		Usage: "path to the config folder",
		Value: defaultConfigDir,
	})

	return &CLIBuilder{
		Builder:  builder,
		injector: injector,
		actions:  actions,
		daemonFactory: socketFactory{
			injector: injector,
			actions:  actions,
			out:      out,
		},
		inits:  inits,
		notify: notify,
		sigs:   sigs,
	}
}

// SetStartFlags implements node.Builder. A flag with the name of a flag
// already set by another initializer is ignored so that they share the value.
func (b *CLIBuilder) SetStartFlags(flags ...cli.Flag) {
	for _, flag := range flags {
		if b.hasStartFlag(flag.GetName()) {
			certkv.Logger.Warn().Str("flag", flag.GetName()).Msg("duplicate start flag")
			continue
		}

		b.startFlags = append(b.startFlags, flag)
	}
}

func (b *CLIBuilder) hasStartFlag(name string) bool {
	for _, flag := range b.startFlags {
		if flag.GetName() == name {
			return true
		}
	}

	return false
}

// MakeAction implements node.Builder. The action sends the flags of the
// command to the daemon which executes the template.
func (b *CLIBuilder) MakeAction(tmpl ActionTemplate) cli.Action {
	id := b.actions.Set(tmpl)

	return func(flags cli.Flags) error {
		ctx, ok := flags.(*urfave.Context)
		if !ok {
			return xerrors.Errorf("unexpected flags of type '%T'", flags)
		}

		client, err := b.daemonFactory.ClientFromContext(flags)
		if err != nil {
			return xerrors.Errorf("couldn't make client: %v", err)
		}

		err = client.Send(Request{Action: id, Flags: collectFlags(ctx)})
		if err != nil {
			return xerrors.Opaque(err)
		}

		return nil
	}
}

// collectFlags reads the values of the flags of the command and of its
// parents. A flag of a command hides the one of a parent with the same name.
func collectFlags(ctx *urfave.Context) FlagSet {
	fset := FlagSet{}

	lineage := ctx.Lineage()

	for i := len(lineage) - 1; i >= 0; i-- {
		current := lineage[i]

		if current.App != nil {
			copyFlags(fset, current.App.Flags, current)
		}

		if current.Command != nil {
			copyFlags(fset, current.Command.Flags, current)
		}
	}

	return fset
}

func copyFlags(fset FlagSet, flags []urfave.Flag, ctx *urfave.Context) {
	for _, flag := range flags {
		names := flag.Names()
		if len(names) == 0 {
			continue
		}

		value := ctx.Value(names[0])

		// A StringSlice doesn't encode to JSON as a list of strings.
		slice, ok := value.(urfave.StringSlice)
		if ok {
			value = slice.Value()
		}

		fset[names[0]] = value
	}
}

// Build implements node.Builder. It adds the start command to the commands of
// the initializers.
func (b *CLIBuilder) Build() cli.Application {
	for _, ctrl := range b.inits {
		ctrl.SetCommands(b)
	}

	cmd := b.SetCommand("start")
	cmd.SetDescription("start the daemon")
	cmd.SetFlags(b.startFlags...)
	cmd.SetAction(b.start)

	return b.Builder.Build()
}

// start runs the controllers and the daemon until the process is told to
// stop.
func (b *CLIBuilder) start(flags cli.Flags) error {
	if b.notify {
		signal.Notify(b.sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(b.sigs)
	}

	flags, err := b.prepare(flags)
	if err != nil {
		return err
	}

	daemon, err := b.daemonFactory.DaemonFromContext(flags)
	if err != nil {
		return xerrors.Errorf("couldn't make daemon: %v", err)
	}

	for _, ctrl := range b.inits {
		err = ctrl.OnStart(flags, b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't run the controller: %v", err)
		}
	}

	// Commands are accepted only once every controller has started.
	err = daemon.Listen()
	if err != nil {
		return xerrors.Errorf("couldn't start the daemon: %v", err)
	}

	defer daemon.Close()

	sig, ok := <-b.sigs
	if ok {
		certkv.Logger.Info().Stringer("signal", sig).Msg("stopping the daemon")
	}

	return b.stopControllers()
}

// prepare creates the config folder and applies the values of its config
// file to the flags.
func (b *CLIBuilder) prepare(flags cli.Flags) (cli.Flags, error) {
	dir := flags.Path("config")
	if dir != "" {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			return nil, xerrors.Errorf("couldn't make path: %v", err)
		}
	}

	cfg, err := cli.LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, xerrors.Errorf("couldn't load config: %v", err)
	}

	if len(cfg) == 0 {
		return flags, nil
	}

	certkv.Logger.Info().Int("values", len(cfg)).Msg("config file loaded")

	return cli.WithConfig(flags, cfg), nil
}

// stopControllers stops the controllers in the reverse order of the start so
// that a service stops before the storage it depends on.
func (b *CLIBuilder) stopControllers() error {
	for i := len(b.inits) - 1; i >= 0; i-- {
		err := b.inits[i].OnStop(b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't stop controller: %v", err)
		}
	}

	certkv.Logger.Trace().Msg("daemon has been stopped")

	return nil
}

// actionMap gives to each action template the identifier the client sends to
// the daemon.
type actionMap struct {
	list []ActionTemplate
}

func (m *actionMap) Set(a ActionTemplate) uint16 {
	m.list = append(m.list, a)
	return uint16(len(m.list) - 1)
}

func (m *actionMap) Get(index uint16) ActionTemplate {
	if int(index) >= len(m.list) {
		return nil
	}

	return m.list[index]
}
