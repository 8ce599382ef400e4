package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/term"

	"github.com/trezcool/maktaba/core/library"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } // mockable

	errApproveAndReject = errors.New("-approve and -reject are mutually exclusive")
	errUndecided        = errors.New("review left undecided")
)

func (cli *commandLine) reviewLoanCmd(args []string) error {
	fs := cli.newFlagSet("reviewloan")
	school := fs.String("school", "", "The loan's school.")
	loanID := fs.String("loan", "", "The flagged loan's ID.")
	approve := fs.Bool("approve", false, "Assign the proposed borrower.")
	reject := fs.Bool("reject", false, "Keep the current borrower.")
	note := fs.String("note", "", "A note appended to the loan.")
	if err := parse(fs, args, map[string]*string{"school": school, "loan": loanID}); err != nil {
		return err
	}
	if *approve && *reject {
		return errApproveAndReject
	}

	ctx := context.Background()
	loan, err := cli.librarySvc.GetLoan(ctx, *school, *loanID)
	if err != nil {
		return err
	}
	if loan.Review == nil {
		return library.ErrNotUnderReview
	}

	diff, err := borrowerDiff(loan.Loan)
	if err != nil {
		return err
	}
	fmt.Fprint(cli.out, diff)

	decided := *approve || *reject
	if !decided {
		if !isTerminalFunc() {
			return errUndecided
		}
		if *approve, err = cli.confirm("Assign the proposed borrower?"); err != nil {
			return err
		}
	}

	reviewed, err := cli.librarySvc.ReviewMigratedLoan(ctx, *school, *loanID, *approve, *note)
	if err != nil {
		return err
	}
	return cli.printJSON(reviewed)
}

// borrowerDiff renders the borrower change an approval would make as a unified diff.
func borrowerDiff(loan library.Loan) (string, error) {
	lines := func(b library.Borrower) []string {
		return difflib.SplitLines(fmt.Sprintf("kind: %s\nid: %s\n", b.Kind, b.ID))
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(loan.Borrower),
		B:        lines(loan.Review.Proposed),
		FromFile: "current",
		ToFile:   "proposed",
		Context:  2,
	})
}

func (cli *commandLine) confirm(question string) (bool, error) {
	fmt.Fprintf(cli.out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
