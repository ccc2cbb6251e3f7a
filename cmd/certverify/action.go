package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/app/users/client"
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/core/verify"
	"go.dedis.ch/certkv/internal/tracing"
	"golang.org/x/xerrors"
)

// ServiceName is the name of the client in the traces.
const ServiceName = "certverify"

var getTracer = tracing.GetTracer

var names = []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi"}

// action defines the actions of the commands.
type action struct {
	printer io.Writer
}

func (a action) getAction(flags cli.Flags) error {
	index := flags.Int("index")
	if index <= 0 {
		return xerrors.Errorf("invalid index %d", index)
	}

	cl, err := newClient(flags)
	if err != nil {
		return err
	}

	return a.verify(cl, uint64(index))
}

func (a action) demoAction(flags cli.Flags) error {
	count := flags.Int("count")
	if count <= 0 {
		return xerrors.Errorf("invalid count %d", count)
	}

	cl, err := newClient(flags)
	if err != nil {
		return err
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	var last uint64

	for i := 0; i < count; i++ {
		user := users.NewUser(names[rnd.Intn(len(names))], uint64(18+rnd.Intn(60)))

		last, err = cl.SetUser(user)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.printer, "inserted user %d: %s (%d)\n", last, user.Name, user.Age)
	}

	// The indexes are contiguous so any index up to the last is certified.
	return a.verify(cl, uint64(1+rnd.Int63n(int64(last))))
}

func (a action) verify(cl *client.Client, index uint64) error {
	user, verified, err := cl.GetUser(index)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.printer, "user %d: %s (%d) verified, certified at %s\n",
		index, user.Name, user.Age, verified.Time.Format(time.RFC3339))

	return nil
}

func newClient(flags cli.Flags) (*client.Client, error) {
	tracer, err := getTracer(ServiceName)
	if err != nil {
		certkv.Logger.Warn().Err(err).Msg("tracing disabled")

		tracer = opentracing.NoopTracer{}
	}

	opts := []client.Option{client.WithTracer(tracer)}

	skew := flags.Duration("maxskew")
	if skew > 0 {
		opts = append(opts, client.WithVerifierOptions(verify.WithMaxSkew(skew)))
	}

	subject := flags.String("subject")
	if subject != "" {
		opts = append(opts, client.WithSubject([]byte(subject)))
	}

	path := flags.Path("rootkey")
	if path != "" {
		// The node is not trusted to tell which store the key certifies.
		if subject == "" {
			return nil, xerrors.New("--subject is required with --rootkey")
		}

		rootKey, err := readRootKey(path)
		if err != nil {
			return nil, err
		}

		opts = append(opts, client.WithRootKey(rootKey))
	}

	return client.NewClient(flags.String("addr"), opts...), nil
}

// readRootKey reads the hexadecimal root key of the file, as printed by the
// authority pubkey command of the node.
func readRootKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read root key: %v", err)
	}

	rootKey, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, xerrors.Errorf("invalid root key: %v", err)
	}

	return rootKey, nil
}
