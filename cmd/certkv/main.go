// Package main implements the node of the certified key-value store.
//
// Create the key of the authority, start the node and talk to it from another
// terminal:
//
//	certkv key new --save .certkv/authority.key
//	certkv start --refresh 30s
//	certkv user set --user Alice:30 --user Bob:25
//	certkv user get --index 1
//	certkv proxy start --clientaddr 127.0.0.1:8080
//	certkv user http
//	certkv authority pubkey > rootkey.hex
//
// The start flags can also be set in the config.yml file of the config
// folder.
package main

import (
	"fmt"
	"io"
	"os"

	users "go.dedis.ch/certkv/app/users/controller"
	"go.dedis.ch/certkv/cli/node"
	db "go.dedis.ch/certkv/core/store/kv/controller"
	key "go.dedis.ch/certkv/crypto/command"
	proxy "go.dedis.ch/certkv/proxy/http/controller"
)

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{})
}

func runWithCfg(args []string, cfg config) error {
	// The database is opened first so that it is closed last.
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		db.NewController(),
		proxy.NewController(),
		users.NewController(),
	)

	key.Initializer{}.SetCommands(builder)

	app := builder.Build()

	return app.Run(args)
}
