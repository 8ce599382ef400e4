package dig_container

import (
	"io"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
	logsvc "github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/database"
	inmemdb "github.com/trezcool/maktaba/storage/database/inmem"
	boiledrepos "github.com/trezcool/maktaba/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/maktaba/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the repositories of the configured database engine.
type Storage struct {
	Ledger  library.Repository
	Members member.Repository
	Logger  core.Logger
	closer  io.Closer
}

func (s Storage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(os.Stdout, "API", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(os.Stdout, "DB", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	setUp := func() (Storage, error) {
		if conf.Database.InMemory() {
			db := inmemdb.Open()
			return Storage{
				Ledger:  inmemdb.NewLedgerRepository(db),
				Members: inmemdb.NewMemberRepository(db),
			}, nil
		}

		if err := database.CreateIfNotExist(conf); err != nil {
			return Storage{}, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return Storage{}, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return Storage{}, err
		}
		return Storage{
			Ledger:  boiledrepos.NewLedgerRepository(db),
			Members: sqlxrepos.NewMemberRepository(sqlx.NewDb(db, "postgres")),
			closer:  db,
		}, nil
	}

	storage, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	storage.Logger = loggerParam.Logger
	return storage
}

func newLedgerRepository(s Storage) library.Repository { return s.Ledger }

func newMemberRepository(s Storage) member.Repository { return s.Members }

func newDirectory(svc *member.Service) library.Directory { return svc }

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	LibrarySvc *library.Service
	MemberSvc  *member.Service
	Validate   *validator.Validate
	Translator ut.Translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       p.Conf,
			Logger:     p.Logger,
			LibrarySvc: p.LibrarySvc,
			MemberSvc:  p.MemberSvc,
			Validate:   p.Validate,
			Translator: p.Translator,
		},
	)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newLedgerRepository))
	must(c.Provide(newMemberRepository))
	must(c.Provide(member.NewService))
	must(c.Provide(newDirectory))
	must(c.Provide(library.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
