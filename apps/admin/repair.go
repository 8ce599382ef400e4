package main

import (
	"context"

	"github.com/pkg/errors"
)

func (cli *commandLine) repairCmd(name string, args []string) error {
	fs := cli.newFlagSet(name)
	school := fs.String("school", "", "The school to repair.")
	if err := parse(fs, args, map[string]*string{"school": school}); err != nil {
		return err
	}

	report, err := cli.repair(name, *school)
	if err != nil {
		return err
	}
	return cli.printJSON(report)
}

func (cli *commandLine) repair(name, school string) (interface{}, error) {
	ctx := context.Background()
	switch name {
	case "fixavailability":
		return cli.librarySvc.FixAvailability(ctx, school)
	case "restoreavailability":
		return cli.librarySvc.RestoreAvailability(ctx, school)
	case "cleanup":
		return cli.librarySvc.CleanupOrphanedLoans(ctx, school)
	case "migratestaffloans":
		return cli.librarySvc.MigrateOldStaffLoans(ctx, school)
	default:
		return nil, errors.Errorf("%q: no such repair", name)
	}
}
