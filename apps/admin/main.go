package main

import (
	"database/sql"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	logsvc "github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/database"
	inmemdb "github.com/trezcool/maktaba/storage/database/inmem"
	boiledrepos "github.com/trezcool/maktaba/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/maktaba/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(os.Stderr, "ADMIN", conf)
	logger.Enable(!conf.Debug)

	cli, closeDB, err := newCommandLine(conf, logger)
	if err != nil {
		logger.Fatal("setting up storage", err)
	}

	err = cli.run(os.Args)
	if cerr := closeDB(); cerr != nil {
		logger.Error("closing database", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}

// newCommandLine wires the services on the configured database engine.
func newCommandLine(conf *core.Config, logger core.Logger) (*commandLine, func() error, error) {
	var (
		db      *sql.DB
		ledger  library.Repository
		members member.Repository
	)
	closeDB := func() error { return nil }

	if conf.Database.InMemory() {
		mem := inmemdb.Open()
		ledger = inmemdb.NewLedgerRepository(mem)
		members = inmemdb.NewMemberRepository(mem)
	} else {
		var err error
		if db, err = database.Open(conf); err != nil {
			return nil, nil, errors.Wrap(err, "opening database")
		}
		closeDB = db.Close
		ledger = boiledrepos.NewLedgerRepository(db)
		members = sqlxrepos.NewMemberRepository(sqlx.NewDb(db, "postgres"))
	}

	memberSvc := member.NewService(members)
	cli := &commandLine{
		conf:       conf,
		db:         db,
		memberSvc:  memberSvc,
		librarySvc: library.NewService(ledger, memberSvc, logger, conf),
		validate:   newValidator(),
		out:        os.Stdout,
		in:         os.Stdin,
	}
	return cli, closeDB, nil
}
