package main

import (
	"context"
	"fmt"

	echoapi "github.com/trezcool/maktaba/apps/api/echo"
)

func (cli *commandLine) tokenCmd(args []string) error {
	fs := cli.newFlagSet("token")
	id := fs.String("id", "", "The member's ID.")
	allSchools := fs.Bool("all-schools", false, "Grant access to every school (admins only).")
	if err := parse(fs, args, map[string]*string{"id": id}); err != nil {
		return err
	}

	token, err := cli.token(*id, *allSchools)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}

func (cli *commandLine) token(memberID string, allSchools bool) (string, error) {
	mbr, err := cli.memberSvc.GetByID(context.Background(), memberID)
	if err != nil {
		return "", err
	}
	if allSchools && !mbr.IsAdmin {
		return "", fmt.Errorf("%s is not an admin", mbr.Name)
	}
	return echoapi.GenerateToken(echoapi.NewClaims(mbr, cli.conf, allSchools), cli.conf.SecretKey)
}
