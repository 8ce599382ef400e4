package main

import (
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/storage/database"
)

var migrateFunc = database.Migrate // mockable

var errNoSQLDatabase = errors.New("migrations need a SQL database engine")

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	return migrateFunc(cli.db, args[0], args[1:]...)
}
