// Package command defines the commands to create and read the key files of
// the authorities. They run locally and don't need a running node.
package command

import (
	"os"

	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/crypto/common"
)

// Initializer sets the key commands.
type Initializer struct{}

// SetCommands sets the key commands on the builder.
func (i Initializer) SetCommands(builder cli.Builder) {
	action := action{
		printer: os.Stdout,

		genKey:   generate,
		readFile: os.ReadFile,
		saveFile: saveToFile,
	}

	cmd := builder.SetCommand("key")
	cmd.SetDescription("manage the key files of the authority")

	gen := cmd.SetSubCommand("new")
	gen.SetDescription("create a new key file")
	gen.SetFlags(cli.StringFlag{
		Name:  "algorithm",
		Usage: "signature scheme of the key: CURVE-BN256 or CURVE-ED25519",
		Value: bls.Algorithm,
	}, cli.StringFlag{
		Name:  "save",
		Usage: "if provided, save the key to that file, otherwise print it in hex",
	}, cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite the file when it already exists",
	})
	gen.SetAction(action.newKeyAction)

	read := cmd.SetSubCommand("read")
	read.SetDescription("print the public part of a key file")
	read.SetFlags(cli.StringFlag{
		Name:     "path",
		Usage:    "path to the key file",
		Required: true,
	}, cli.StringFlag{
		Name:  "format",
		Usage: "output format: [ROOTKEY | PUBKEY | ALGORITHM]",
		Value: RootKey,
	})
	read.SetAction(action.readKeyAction)
}

func generate(algorithm string) ([]byte, error) {
	return common.NewKeyGenerator(algorithm).Generate()
}
