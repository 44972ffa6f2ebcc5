package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/config"
	"github.com/tallybook-dev/tallybook/internal/journal"
)

func newInitCommand() *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new book directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			if err := runInit(absDir, base); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized book at %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "USD", "base commodity")

	return cmd
}

func runInit(dir, base string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	cfgPath := filepath.Join(dir, journal.ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	if err := config.Save(cfgPath, config.Default(base)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	journalPath := filepath.Join(dir, journal.JournalFile)
	if err := os.WriteFile(journalPath, []byte(journal.Header+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}

	pricesPath := filepath.Join(dir, journal.PricesFile)
	if err := os.WriteFile(pricesPath, []byte(journal.PricesHeader+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing prices: %w", err)
	}

	return nil
}
