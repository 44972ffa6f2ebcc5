package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/journal"
	"github.com/tallybook-dev/tallybook/internal/ledger"
)

const dateFlagFormat = "2006-01-02"

func newBalanceCommand() *cobra.Command {
	var (
		bookDir    string
		account    string
		from, to   string
		base       string
		historical bool
		at         string
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := journal.NewService(bookDir).Load()
			if err != nil {
				return err
			}

			q := ledger.Query{Conversion: ledger.NoConversion()}
			if account != "" {
				q.Account = book.Queries.SubtreeFilter(account)
			}
			if q.From, err = parseDateFlag(from); err != nil {
				return err
			}
			if q.To, err = parseDateFlag(to); err != nil {
				return err
			}

			if base != "" {
				baseID := book.Registry.Commodity(base)
				if historical {
					if at != "" {
						return fmt.Errorf("--at cannot be combined with --historical")
					}
					q.Conversion = ledger.Historical(baseID)
				} else {
					ref := time.Now()
					if at != "" {
						if ref, err = parseDateFlag(at); err != nil {
							return err
						}
					}
					q.Conversion = ledger.UpToDate(baseID, ref)
				}
			} else if historical || at != "" {
				return fmt.Errorf("--historical and --at require --base")
			}

			rows, err := book.Queries.Balance(q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\n",
					book.Registry.AccountName(row.Account),
					row.Amount.Format(book.Registry))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&bookDir, "book", ".", "book directory")
	cmd.Flags().StringVar(&account, "account", "", "restrict to this account and its children")
	cmd.Flags().StringVar(&from, "from", "", "start date (inclusive, YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (exclusive, YYYY-MM-DD)")
	cmd.Flags().StringVar(&base, "base", "", "convert balances into this commodity")
	cmd.Flags().BoolVar(&historical, "historical", false, "convert each posting at its own date's rate")
	cmd.Flags().StringVar(&at, "at", "", "reference date for conversion (default today)")

	return cmd
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateFlagFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return d, nil
}
