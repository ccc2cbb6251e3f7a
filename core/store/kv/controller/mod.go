// Package controller implements the initializer that opens the database of
// the node.
package controller

import (
	"path/filepath"

	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/cli"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/core/store/kv"
	"golang.org/x/xerrors"
)

// DBName is the default name of the database file in the config folder.
const DBName = "certkv.db"

var newDB = kv.New

// dbController opens the database when the node starts and closes it when it
// stops.
//
// - implements node.Initializer
type dbController struct{}

// NewController returns the database initializer.
func NewController() node.Initializer {
	return dbController{}
}

// SetCommands implements node.Initializer.
func (dbController) SetCommands(builder node.Builder) {
	builder.SetStartFlags(cli.StringFlag{
		Name:  "db",
		Usage: "path of the database file, relative to the config folder",
		Env:   "CERTKV_DB",
		Value: DBName,
	})
}

// OnStart implements node.Initializer. It opens the database and injects it.
func (dbController) OnStart(flags cli.Flags, inj node.Injector) error {
	path := dbPath(flags)

	db, err := newDB(path)
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	certkv.Logger.Info().Str("path", path).Msg("database opened")

	inj.Inject(db)

	return nil
}

// OnStop implements node.Initializer. It closes the database.
func (dbController) OnStop(inj node.Injector) error {
	var db kv.DB

	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("while closing db: %v", err)
	}

	return nil
}

func dbPath(flags cli.Flags) string {
	path := flags.String("db")
	if path == "" {
		path = DBName
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(flags.Path("config"), path)
}
