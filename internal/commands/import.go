package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/importer"
	"github.com/tallybook-dev/tallybook/internal/journal"
)

func newImportCommand() *cobra.Command {
	var (
		bookDir string
		format  string
		opts    importer.Options
	)

	registry := importer.DefaultRegistry()

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bank export into the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := registry.Get(format)
			if parser == nil {
				return fmt.Errorf("unknown format %q (available: %s)",
					format, strings.Join(registry.Formats(), ", "))
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening export: %w", err)
			}
			defer f.Close()

			frags, err := parser.Parse(f, opts)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			if len(frags) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import")
				return nil
			}

			// Append re-books the whole journal with the new entries
			// first, so a bad import never reaches disk.
			if err := journal.NewService(bookDir).Append(frags); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", len(frags))
			return nil
		},
	}

	cmd.Flags().StringVar(&bookDir, "book", ".", "book directory")
	cmd.Flags().StringVar(&format, "format", "bankcsv", "export format")
	cmd.Flags().StringVar(&opts.AssetAccount, "account", "", "asset account for the bank side (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&opts.DefaultExpense, "expense", "Expenses:Unknown", "account for uncategorized debits")
	cmd.Flags().StringVar(&opts.DefaultIncome, "income", "Income:Unknown", "account for uncategorized credits")
	cmd.Flags().StringVar(&opts.Commodity, "commodity", "", "commodity for rows without one")
	cmd.Flags().StringVar(&opts.SecondaryCommodity, "secondary", "", "secondary commodity hint")

	return cmd
}
