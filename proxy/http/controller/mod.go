// Package controller implements the initializer of the HTTP proxy. The proxy
// is started by a command once the node is running, and the other
// controllers register their handlers on it.
package controller

import (
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/internal/tracing"
	"go.dedis.ch/certkv/proxy"
	"golang.org/x/xerrors"
)

const (
	defaultAddr = "127.0.0.1:8080"
	defaultProm = "/metrics"
)

// NewController returns a new initializer of the proxy.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer with the minimum set of commands. The proxy is
// created and injected by the start command.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer.
func (m minimal) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("proxy")
	cmd.SetDescription("manage the http proxy")

	sub := cmd.SetSubCommand("start")
	sub.SetDescription("start the proxy http server")
	sub.SetFlags(cli.StringFlag{
		Name:     "clientaddr",
		Required: false,
		Usage:    "the address of the http client",
		Value:    defaultAddr,
	})
	sub.SetAction(builder.MakeAction(startAction{}))

	sub = cmd.SetSubCommand("prom")
	sub.SetDescription("registers the collectors and starts a prometheus handler. " +
		"Will panic if the path is used more than once.")
	sub.SetFlags(cli.StringFlag{
		Name:     "path",
		Required: false,
		Usage:    "the handler path",
		Value:    defaultProm,
	})
	sub.SetAction(builder.MakeAction(promAction{}))
}

// OnStart implements node.Initializer. The proxy is started by a command.
func (m minimal) OnStart(cli.Flags, node.Injector) error {
	return nil
}

// OnStop implements node.Initializer. It stops the proxy if it was started and
// flushes the traces.
func (m minimal) OnStop(inj node.Injector) error {
	var p proxy.Proxy

	err := inj.Resolve(&p)
	if err == nil {
		p.Stop()
	}

	err = tracing.CloseAll()
	if err != nil {
		return xerrors.Errorf("couldn't close tracers: %v", err)
	}

	return nil
}
