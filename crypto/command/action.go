package command

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/crypto/common"
	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

const (
	// RootKey prints the public key in hex as the verifiers expect it.
	RootKey = "ROOTKEY"
	// PubKey prints the public key in a human readable form.
	PubKey = "PUBKEY"
	// Algorithm prints the name of the signature scheme.
	Algorithm = "ALGORITHM"
)

// action defines the actions of the key commands. The functions are fields so
// that the tests can replace them.
type action struct {
	printer io.Writer

	genKey   func(algorithm string) ([]byte, error)
	readFile func(path string) ([]byte, error)
	saveFile func(path string, force bool, data []byte) error
}

func (a action) newKeyAction(flags cli.Flags) error {
	data, err := a.genKey(flags.String("algorithm"))
	if err != nil {
		return xerrors.Errorf("failed to generate key: %v", err)
	}

	path := flags.Path("save")
	if path == "" {
		fmt.Fprintln(a.printer, hex.EncodeToString(data))
		return nil
	}

	err = a.saveFile(path, flags.Bool("force"), data)
	if err != nil {
		return xerrors.Errorf("failed to save file: %v", err)
	}

	return nil
}

func (a action) readKeyAction(flags cli.Flags) error {
	data, err := a.readFile(flags.Path("path"))
	if err != nil {
		return xerrors.Errorf("failed to read data: %v", err)
	}

	signer, algorithm, err := common.UnmarshalSigner(data)
	if err != nil {
		return xerrors.Errorf("failed to load key: %v", err)
	}

	var out string

	switch flags.String("format") {
	case RootKey:
		buf, err := signer.GetPublicKey().Serialize(cbor.NewContext())
		if err != nil {
			return xerrors.Errorf("failed to serialize pubkey: %v", err)
		}

		out = hex.EncodeToString(buf)
	case PubKey:
		buf, err := signer.GetPublicKey().MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to marshal pubkey: %v", err)
		}

		out = string(buf)
	case Algorithm:
		out = algorithm
	default:
		return xerrors.Errorf("unknown format '%s'", flags.String("format"))
	}

	fmt.Fprintln(a.printer, out)

	return nil
}

func saveToFile(path string, force bool, data []byte) error {
	if !force && fileExist(path) {
		return xerrors.Errorf("file '%s' already exist, use --force if you "+
			"want to overwrite", path)
	}

	err := os.WriteFile(path, data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write file: %v", err)
	}

	return nil
}

func fileExist(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
