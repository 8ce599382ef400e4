package main

import (
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	"github.com/trezcool/maktaba/storage/database"
	inmemdb "github.com/trezcool/maktaba/storage/database/inmem"
	boiledrepos "github.com/trezcool/maktaba/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/maktaba/storage/database/sqlx"
)

// repositories are the storage backends selected by the database engine.
type repositories struct {
	ledger  library.Repository
	members member.Repository
	closer  io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setUpRepositories(conf *core.Config) (repositories, error) {
	if conf.Database.InMemory() {
		db := inmemdb.Open()
		return repositories{
			ledger:  inmemdb.NewLedgerRepository(db),
			members: inmemdb.NewMemberRepository(db),
			closer:  nopCloser{},
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return repositories{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return repositories{}, errors.Wrap(err, "migrating database")
	}
	return repositories{
		ledger:  boiledrepos.NewLedgerRepository(db),
		members: sqlxrepos.NewMemberRepository(sqlx.NewDb(db, "postgres")), // same bindvars for pq & pgx
		closer:  db,
	}, nil
}
