package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/member"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf       *core.Config
	db         *sql.DB // nil on the memory engine
	memberSvc  *member.Service
	librarySvc *library.Service
	validate   *validator.Validate
	out        io.Writer
	in         io.Reader
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)
	return validate
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a database migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addmember -school SCHOOL -kind KIND -name NAME [-email EMAIL] [-class CLASS] [-admin] - register a member")
	fmt.Fprintln(cli.out, "  addbook -school SCHOOL -title TITLE -author AUTHOR -isbn ISBN [-category CATEGORY] [-quantity N] - add a book")
	fmt.Fprintln(cli.out, "  token -id MEMBER_ID [-all-schools] - print a signed API token for a member")
	fmt.Fprintln(cli.out, "  fixavailability -school SCHOOL - recompute book availability from active loans")
	fmt.Fprintln(cli.out, "  restoreavailability -school SCHOOL - restore availability of books with no active loans")
	fmt.Fprintln(cli.out, "  cleanup -school SCHOOL - remove loans whose book or borrower no longer exists")
	fmt.Fprintln(cli.out, "  migratestaffloans -school SCHOOL - flag legacy staff loans for review")
	fmt.Fprintln(cli.out, "  reviewloan -school SCHOOL -loan LOAN_ID [-approve|-reject] [-note NOTE] - settle a flagged loan")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addmember":
		return cli.addMemberCmd(args[2:])
	case "addbook":
		return cli.addBookCmd(args[2:])
	case "token":
		return cli.tokenCmd(args[2:])
	case "fixavailability", "restoreavailability", "cleanup", "migratestaffloans":
		return cli.repairCmd(args[1], args[2:])
	case "reviewloan":
		return cli.reviewLoanCmd(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args and checks that every required string flag is set.
func parse(fs *flag.FlagSet, args []string, required map[string]*string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	for name, val := range required {
		if strings.TrimSpace(*val) == "" {
			fmt.Fprintf(fs.Output(), "missing -%s\n", name)
			fs.Usage()
			return errHelp
		}
	}
	return nil
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
