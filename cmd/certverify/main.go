// Package main implements a client of the REST API of a certkv node that
// verifies every user it reads against the root key of the authority.
//
//	certverify get --addr http://127.0.0.1:8080 --index 1 --rootkey rootkey.hex --subject users
//	certverify demo --addr http://127.0.0.1:8080 --count 10
//
// The flags can be read from a YAML file given with --config:
//
//	addr: http://127.0.0.1:8080
//	rootkey: rootkey.hex
//	subject: users
//	maxskew: 1m
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/ucli"
	"go.dedis.ch/certkv/core/verify"
	"go.dedis.ch/certkv/internal/tracing"
)

const defaultAddr = "http://127.0.0.1:8080"

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defer tracing.CloseAll()

	return runWithCfg(args, os.Stdout)
}

func runWithCfg(args []string, out io.Writer) error {
	builder := ucli.NewBuilder("certverify", nil, cli.StringFlag{
		Name:  "config",
		Usage: "path to an optional YAML file with the values of the flags",
	}).(*ucli.Builder)

	builder.SetConfigFlag("config")

	a := action{printer: out}

	common := []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Env:   "CERTVERIFY_ADDR",
			Usage: "address of the REST API of the node",
			Value: defaultAddr,
		},
		cli.StringFlag{
			Name:  "rootkey",
			Env:   "CERTVERIFY_ROOTKEY",
			Usage: "file with the root key in hex, otherwise the key of the node is trusted",
		},
		cli.StringFlag{
			Name:  "subject",
			Env:   "CERTVERIFY_SUBJECT",
			Usage: "subject of the store, required with the root key",
		},
		cli.DurationFlag{
			Name:  "maxskew",
			Env:   "CERTVERIFY_MAXSKEW",
			Usage: "maximum difference between the time of a certificate and now",
			Value: verify.DefaultMaxSkew,
		},
	}

	cmd := builder.SetCommand("get")
	cmd.SetDescription("read and verify a user")
	cmd.SetFlags(append(common, cli.IntFlag{
		Name:  "index",
		Usage: "index of the user",
	})...)
	cmd.SetAction(a.getAction)

	cmd = builder.SetCommand("demo")
	cmd.SetDescription("insert random users and verify one of them")
	cmd.SetFlags(append(common, cli.IntFlag{
		Name:  "count",
		Usage: "number of users to insert",
		Value: 5,
	})...)
	cmd.SetAction(a.demoAction)

	return builder.Build().Run(args)
}
