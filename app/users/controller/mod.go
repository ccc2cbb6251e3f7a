// Package controller implements the initializer of the users service. It
// creates the local authority with the key of the config folder, the certified
// store and its journal, and the service on top of them.
package controller

import (
	"context"
	"path/filepath"

	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/certification/local"
	"go.dedis.ch/certkv/core/store/certified"
	"go.dedis.ch/certkv/core/store/kv"
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/crypto/common"
	"go.dedis.ch/certkv/crypto/loader"
	"golang.org/x/xerrors"
)

const (
	// AuthorityKeyFile is the name of the file of the root key of the
	// authority in the config folder.
	AuthorityKeyFile = "authority.key"

	// SubnetKeyFile is the name of the file of the key the authority delegates
	// to when a subnet is configured.
	SubnetKeyFile = "subnet.key"

	// JournalBucket is the name of the bucket of the journal of the users.
	JournalBucket = "users"

	defaultSubject = "users"
)

// NewController returns a new initializer of the users service.
func NewController() node.Initializer {
	return &controller{}
}

// controller creates and injects the service when the node starts.
//
// - implements node.Initializer
type controller struct {
	stopRefresh context.CancelFunc
}

// SetCommands implements node.Initializer.
func (c *controller) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:  "algorithm",
			Usage: "signature scheme of a new authority key: CURVE-BN256 or CURVE-ED25519",
			Value: bls.Algorithm,
		},
		cli.StringFlag{
			Name:  "subject",
			Env:   "CERTKV_SUBJECT",
			Usage: "subject of the store in the state of the authority",
			Value: defaultSubject,
		},
		cli.DurationFlag{
			Name:  "refresh",
			Env:   "CERTKV_REFRESH",
			Usage: "interval between two signatures of the state of the authority",
			Value: local.DefaultRefreshInterval,
		},
		cli.StringFlag{
			Name:  "subnet",
			Usage: "if provided, the authority delegates the signatures to that subnet",
		},
	)

	cmd := builder.SetCommand("user")
	cmd.SetDescription("manage the certified users")

	sub := cmd.SetSubCommand("set")
	sub.SetDescription("insert users in the store")
	sub.SetFlags(cli.StringSliceFlag{
		Name:     "user",
		Usage:    "user as name:age, can be repeated",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(setAction{}))

	sub = cmd.SetSubCommand("get")
	sub.SetDescription("read and verify a user of the store")
	sub.SetFlags(cli.IntFlag{
		Name:     "index",
		Usage:    "index of the user",
		Required: true,
	}, cli.BoolFlag{
		Name:  "certificate",
		Usage: "print the certificate of the user in JSON",
	})
	sub.SetAction(builder.MakeAction(getAction{}))

	sub = cmd.SetSubCommand("http")
	sub.SetDescription("register the REST API of the users on the proxy")
	sub.SetAction(builder.MakeAction(httpAction{}))

	cmd = builder.SetCommand("authority")
	cmd.SetDescription("inspect the certification authority")

	sub = cmd.SetSubCommand("pubkey")
	sub.SetDescription("print the root key in hex")
	sub.SetAction(builder.MakeAction(pubkeyAction{}))
}

// OnStart implements node.Initializer. It creates the authority and the
// service, replays the journal, and starts the refresh loop of the authority.
func (c *controller) OnStart(flags cli.Flags, inj node.Injector) error {
	var db kv.DB

	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	dir := flags.Path("config")

	algorithm := flags.String("algorithm")
	if algorithm == "" {
		algorithm = bls.Algorithm
	}

	signer, err := loadSigner(filepath.Join(dir, AuthorityKeyFile), algorithm)
	if err != nil {
		return xerrors.Errorf("couldn't load authority key: %v", err)
	}

	subject := []byte(flags.String("subject"))
	if len(subject) == 0 {
		subject = []byte(defaultSubject)
	}

	opts := []local.Option{local.WithSigner(signer)}

	refresh := flags.Duration("refresh")
	if refresh > 0 {
		opts = append(opts, local.WithRefreshInterval(refresh))
	}

	subnet := flags.String("subnet")
	if subnet != "" {
		subnetSigner, err := loadSigner(filepath.Join(dir, SubnetKeyFile), algorithm)
		if err != nil {
			return xerrors.Errorf("couldn't load subnet key: %v", err)
		}

		opts = append(opts, local.WithDelegation([]byte(subnet), subnetSigner,
			certification.NewRange(subject, subject)))
	}

	authority, err := local.NewAuthority(opts...)
	if err != nil {
		return xerrors.Errorf("couldn't create authority: %v", err)
	}

	journal, err := kv.NewJournal(db, JournalBucket)
	if err != nil {
		return xerrors.Errorf("couldn't open journal: %v", err)
	}

	publisher := certification.NewSubjectPublisher(authority, subject)
	store := certified.NewStore(certified.WithPublisher(publisher))

	srvc, err := users.NewService(store, authority, subject, users.WithJournal(journal))
	if err != nil {
		return xerrors.Errorf("couldn't create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopRefresh = cancel

	go authority.Run(ctx)

	inj.Inject(authority)
	inj.Inject(srvc)

	return nil
}

// OnStop implements node.Initializer. It stops the refresh loop.
func (c *controller) OnStop(node.Injector) error {
	if c.stopRefresh != nil {
		c.stopRefresh()
		c.stopRefresh = nil
	}

	return nil
}

// loadSigner returns the signer of the key file, which is created with a new
// key of the algorithm if it does not exist.
func loadSigner(path, algorithm string) (crypto.Signer, error) {
	data, err := loader.NewFileLoader(path).LoadOrCreate(common.NewKeyGenerator(algorithm))
	if err != nil {
		return nil, xerrors.Errorf("loader: %v", err)
	}

	signer, _, err := common.UnmarshalSigner(data)
	if err != nil {
		return nil, err
	}

	return signer, nil
}
