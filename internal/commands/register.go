package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/export"
	"github.com/tallybook-dev/tallybook/internal/journal"
)

func newRegisterCommand() *cobra.Command {
	var (
		bookDir string
		asCSV   bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "List booked transactions in chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := journal.NewService(bookDir).Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asCSV {
				return export.Write(out, book.Registry, book.Transactions)
			}

			for _, txn := range book.Transactions {
				header := txn.Date.Format(dateFlagFormat)
				if txn.Code != "" {
					header += " (" + txn.Code + ")"
				}
				fmt.Fprintf(out, "%s %s\n", header, txn.Narration)
				for _, p := range txn.Postings {
					fmt.Fprintf(out, "    %-40s %s\n",
						book.Registry.AccountName(p.Account),
						p.Amount.Format(book.Registry))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bookDir, "book", ".", "book directory")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "emit CSV, one row per posting")

	return cmd
}
