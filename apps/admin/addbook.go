package main

import (
	"context"

	"github.com/trezcool/maktaba/core/library"
)

func (cli *commandLine) addBookCmd(args []string) error {
	fs := cli.newFlagSet("addbook")
	school := fs.String("school", "", "The book's school.")
	title := fs.String("title", "", "The book's title.")
	author := fs.String("author", "", "The book's author.")
	isbn := fs.String("isbn", "", "The book's ISBN, unique per school.")
	category := fs.String("category", "", "The book's category.")
	quantity := fs.Int("quantity", 1, "The number of copies owned.")
	required := map[string]*string{"school": school, "title": title, "author": author, "isbn": isbn}
	if err := parse(fs, args, required); err != nil {
		return err
	}

	nb := library.NewBook{
		School:   *school,
		Title:    *title,
		Author:   *author,
		ISBN:     *isbn,
		Category: *category,
		Quantity: quantity,
	}
	if err := nb.Validate(cli.validate); err != nil {
		return err
	}
	book, err := cli.librarySvc.CreateBook(context.Background(), nb)
	if err != nil {
		return err
	}
	return cli.printJSON(book)
}
