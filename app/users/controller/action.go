package controller

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/verify"
	"go.dedis.ch/certkv/proxy"
	"go.dedis.ch/certkv/serde/cbor"
	sjson "go.dedis.ch/certkv/serde/json"
	"golang.org/x/xerrors"

	// The certificates are displayed in JSON.
	_ "go.dedis.ch/certkv/core/certification/json"
)

type setAction struct{}

// Execute implements node.ActionTemplate. It inserts the users of the flags in
// the order they are given.
func (a setAction) Execute(ctx node.Context) error {
	var srvc *users.Service

	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	list := ctx.Flags.StringSlice("user")
	if len(list) == 0 {
		return xerrors.New("no user provided")
	}

	for _, str := range list {
		user, err := parseUser(str)
		if err != nil {
			return xerrors.Errorf("invalid user '%s': %v", str, err)
		}

		index, err := srvc.SetUser(user)
		if err != nil {
			return xerrors.Errorf("couldn't set user: %v", err)
		}

		fmt.Fprintf(ctx.Out, "user %d: %s (%d)\n", index, user.Name, user.Age)
	}

	return nil
}

type getAction struct{}

// Execute implements node.ActionTemplate. It reads the user and verifies it
// against the root key of the authority before printing it.
func (a getAction) Execute(ctx node.Context) error {
	var srvc *users.Service

	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	index := ctx.Flags.Int("index")
	if index <= 0 {
		return xerrors.Errorf("invalid index %d", index)
	}

	res, err := srvc.GetUser(uint64(index))
	if err != nil {
		return xerrors.Errorf("couldn't get user: %v", err)
	}

	rootKey, err := srvc.GetRootKey()
	if err != nil {
		return xerrors.Errorf("couldn't get root key: %v", err)
	}

	verifier, err := verify.NewVerifierFromBytes(rootKey)
	if err != nil {
		return xerrors.Errorf("couldn't create verifier: %v", err)
	}

	verified, err := verifier.Verify(verify.Request{
		Value:       res.Value,
		Certificate: res.Certificate,
		Witness:     res.Witness,
		Subject:     srvc.GetSubject(),
		Path:        users.Path(res.Index),
		Now:         time.Now(),
	})
	if err != nil {
		return xerrors.Errorf("user %d rejected: %v", res.Index, err)
	}

	fmt.Fprintf(ctx.Out, "user %d: %s (%d) certified at %s with root %v\n",
		res.Index, res.User.Name, res.User.Age,
		verified.Time.Format(time.RFC3339), verified.CertifiedData)

	if ctx.Flags.Bool("certificate") {
		err = printCertificate(ctx.Out, res.Certificate)
		if err != nil {
			return xerrors.Errorf("couldn't print certificate: %v", err)
		}
	}

	return nil
}

// printCertificate writes the certificate in indented JSON.
func printCertificate(out io.Writer, data []byte) error {
	cert, err := certification.NewCertificateFactory().CertificateOf(cbor.NewContext(), data)
	if err != nil {
		return xerrors.Errorf("couldn't decode: %v", err)
	}

	raw, err := cert.Serialize(sjson.NewContext())
	if err != nil {
		return xerrors.Errorf("couldn't encode: %v", err)
	}

	buffer := new(bytes.Buffer)

	err = json.Indent(buffer, raw, "", "  ")
	if err != nil {
		return xerrors.Errorf("couldn't indent: %v", err)
	}

	_, err = buffer.WriteTo(out)

	return err
}

type httpAction struct{}

// Execute implements node.ActionTemplate. It registers the handlers of the
// REST API on the proxy.
func (a httpAction) Execute(ctx node.Context) error {
	var p proxy.Proxy

	err := ctx.Injector.Resolve(&p)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	var srvc *users.Service

	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	handler := users.NewUsersHandler(srvc)

	p.RegisterHandler(users.UsersPath, handler)
	p.RegisterHandler(users.UsersPath+"/", handler)
	p.RegisterHandler(users.RootKeyPath, users.NewRootKeyHandler(srvc))

	fmt.Fprintf(ctx.Out, "registered users api on %s", users.UsersPath)

	return nil
}

type pubkeyAction struct{}

// Execute implements node.ActionTemplate. It prints the root key in hex, as
// expected by the --rootkey file of the verifying client.
func (a pubkeyAction) Execute(ctx node.Context) error {
	var srvc *users.Service

	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	rootKey, err := srvc.GetRootKey()
	if err != nil {
		return xerrors.Errorf("couldn't get root key: %v", err)
	}

	fmt.Fprintln(ctx.Out, hex.EncodeToString(rootKey))

	return nil
}

// parseUser reads a user in the form name:age.
func parseUser(str string) (users.User, error) {
	idx := strings.LastIndex(str, ":")
	if idx <= 0 {
		return users.User{}, xerrors.New("expected name:age")
	}

	age, err := strconv.ParseUint(str[idx+1:], 10, 64)
	if err != nil {
		return users.User{}, xerrors.Errorf("invalid age: %v", err)
	}

	return users.NewUser(str[:idx], age), nil
}
