package main

import (
	"context"

	"github.com/trezcool/maktaba/core/member"
)

func (cli *commandLine) addMemberCmd(args []string) error {
	fs := cli.newFlagSet("addmember")
	school := fs.String("school", "", "The member's school.")
	kind := fs.String("kind", "", "student, teacher or librarian.")
	name := fs.String("name", "", "The member's full name.")
	email := fs.String("email", "", "The member's email.")
	class := fs.String("class", "", "The student's class.")
	isAdmin := fs.Bool("admin", false, "Grant admin rights.")
	required := map[string]*string{"school": school, "kind": kind, "name": name}
	if err := parse(fs, args, required); err != nil {
		return err
	}

	mbr, err := cli.addMember(member.NewMember{
		School:  *school,
		Kind:    member.Kind(*kind),
		Name:    *name,
		Email:   *email,
		Class:   *class,
		IsAdmin: *isAdmin,
	})
	if err != nil {
		return err
	}
	return cli.printJSON(mbr)
}

// addMember validates and registers a new member.Member
func (cli *commandLine) addMember(nm member.NewMember) (member.Member, error) {
	if err := nm.Validate(cli.validate); err != nil {
		return member.Member{}, err
	}
	return cli.memberSvc.Create(context.Background(), nm)
}
