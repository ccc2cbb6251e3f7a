package controller

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/core/store/kv"
	"go.dedis.ch/certkv/internal/testing/fake"
)

func TestDBController_SetCommands(t *testing.T) {
	builder := &fakeBuilder{}

	NewController().SetCommands(builder)

	require.Len(t, builder.flags, 1)
	require.Equal(t, "db", builder.flags[0].GetName())
}

func TestDBController_OnStart(t *testing.T) {
	ctrl := NewController()

	dir := t.TempDir()
	inj := node.NewInjector()

	err := ctrl.OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, DBName))

	var db kv.DB
	require.NoError(t, inj.Resolve(&db))

	err = ctrl.OnStop(inj)
	require.NoError(t, err)

	// The database is closed.
	err = db.View(func(kv.ReadableTx) error { return nil })
	require.Error(t, err)
}

func TestDBPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.db")

	require.Equal(t, filepath.Join("cfg", DBName), dbPath(node.FlagSet{"config": "cfg"}))
	require.Equal(t, filepath.Join("cfg", "other.db"),
		dbPath(node.FlagSet{"config": "cfg", "db": "other.db"}))
	require.Equal(t, abs, dbPath(node.FlagSet{"config": "cfg", "db": abs}))
}

func TestDBController_Failures(t *testing.T) {
	ctrl := NewController()

	defer func() { newDB = kv.New }()

	newDB = func(string) (kv.DB, error) {
		return nil, fake.GetError()
	}

	err := ctrl.OnStart(node.FlagSet{}, node.NewInjector())
	require.EqualError(t, err, fake.Err("db"))

	err = ctrl.OnStop(node.NewInjector())
	require.Error(t, err)
	require.Contains(t, err.Error(), "injector: couldn't find dependency for 'kv.DB'")

	inj := node.NewInjector()
	inj.Inject(badDB{})

	err = ctrl.OnStop(inj)
	require.EqualError(t, err, fake.Err("while closing db"))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeBuilder struct {
	node.Builder

	flags []cli.Flag
}

func (b *fakeBuilder) SetStartFlags(flags ...cli.Flag) {
	b.flags = append(b.flags, flags...)
}

type badDB struct {
	kv.DB
}

func (badDB) Close() error {
	return fake.GetError()
}
