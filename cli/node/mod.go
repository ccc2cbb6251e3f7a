// Package node builds the command line application of a certkv node.
//
// The application has a start command that runs the daemon of the node. The
// other commands run on the daemon: the client sends the flags of the command
// through a UNIX socket in the config folder and prints what the daemon
// answers. Modules add their commands and start their components with an
// Initializer:
//
//	builder := node.NewBuilder(db.NewController(), users.NewController())
//	builder.Build().Run(os.Args)
//
// The start flags can also be written in the config.yml file of the config
// folder.
package node

import (
	"io"

	"go.dedis.ch/certkv/cli"
)

// Initializer is implemented by the modules of a node. The commands are set
// when the application is built, while OnStart and OnStop run on the daemon in
// the order of the modules, respectively the reverse order.
type Initializer interface {
	// SetCommands adds the commands and the start flags of the module.
	SetCommands(Builder)

	// OnStart starts the components of the module and injects those the
	// actions need.
	OnStart(cli.Flags, Injector) error

	// OnStop releases the components of the module.
	OnStop(Injector) error
}

// Builder is given to the initializers to create their commands.
type Builder interface {
	// SetCommand creates a new command and returns its builder.
	SetCommand(name string) cli.CommandBuilder

	// SetStartFlags adds flags to the start command.
	SetStartFlags(...cli.Flag)

	// MakeAction returns an action that runs the template on the daemon.
	MakeAction(ActionTemplate) cli.Action
}

// ActionTemplate is the part of a command that runs on the daemon.
type ActionTemplate interface {
	Execute(Context) error
}

// Context is given to an action template. What the action writes to Out is
// printed by the client.
type Context struct {
	Injector Injector
	Flags    cli.Flags
	Out      io.Writer
}

// Injector gives the actions access to the components started by the
// initializers.
type Injector interface {
	// Resolve populates the pointer with a compatible dependency, or returns
	// an error if there is none.
	Resolve(interface{}) error

	// Inject adds a dependency.
	Inject(interface{})
}

// Client sends a request to the daemon.
type Client interface {
	Send(Request) error
}

// Daemon receives the requests of the clients while the node runs.
type Daemon interface {
	Listen() error
	Close() error
}

// DaemonFactory creates the daemon and its clients from the flags of a
// command.
type DaemonFactory interface {
	ClientFromContext(cli.Flags) (Client, error)
	DaemonFromContext(cli.Flags) (Daemon, error)
}
