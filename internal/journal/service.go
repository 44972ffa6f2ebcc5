package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tallybook-dev/tallybook/internal/booking"
	"github.com/tallybook-dev/tallybook/internal/config"
	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/price"
)

// File names inside a book directory.
const (
	ConfigFile  = "tallybook.yaml"
	JournalFile = "journal.csv"
	PricesFile  = "prices.csv"
)

// Service loads and books a whole book directory.
type Service struct {
	root string
}

// NewService creates a Service rooted at a book directory.
func NewService(root string) *Service {
	return &Service{root: root}
}

// Book is a fully booked ledger: the shared registry and price index,
// every committed transaction in canonical order, and the query engine
// over the resulting history. It is rebuilt from source on every load;
// nothing is persisted beyond the input files.
type Book struct {
	Config       *config.Config
	Registry     *model.Registry
	Prices       *price.Index
	History      *ledger.History
	Transactions []*model.Transaction
	Queries      *ledger.QueryEngine
}

// Load reads config, prices, and journal from the book directory, books
// every fragment in canonical total order (date, then file order), and
// returns the resulting Book. The first booking error aborts the load;
// no partial ledger is published.
func (s *Service) Load() (*Book, error) {
	cfg, err := config.Load(filepath.Join(s.root, ConfigFile))
	if err != nil {
		return nil, err
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	prices, err := s.loadPrices(reg)
	if err != nil {
		return nil, err
	}

	frags, err := s.loadFragments()
	if err != nil {
		return nil, err
	}

	// Canonical total order: date first, then input order. The stable
	// sort preserves file order within a date, which assertion checks
	// depend on.
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Date.Before(frags[j].Date) })

	running := ledger.NewRunning()
	engine := booking.NewEngine(reg, prices, running, booking.Config{
		AutoBalance:       cfg.AutoBalance,
		AdjustmentAccount: cfg.AdjustmentAccount,
		CommissionAccount: cfg.CommissionAccount,
	})

	txs, err := engine.BookAll(frags)
	if err != nil {
		return nil, err
	}

	history := ledger.NewHistory()
	for _, tx := range txs {
		history.Append(tx)
	}

	return &Book{
		Config:       cfg,
		Registry:     reg,
		Prices:       prices,
		History:      history,
		Transactions: txs,
		Queries:      ledger.NewQueryEngine(reg, prices, history),
	}, nil
}

func (s *Service) loadPrices(reg *model.Registry) (*price.Index, error) {
	index := price.NewIndex()

	path := filepath.Join(s.root, PricesFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening prices %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ReadPrices(f)
	if err != nil {
		return nil, fmt.Errorf("reading prices %s: %w", path, err)
	}
	for _, row := range rows {
		index.Record(row.Date, reg.Commodity(row.From), reg.Commodity(row.To), row.Rate)
	}
	return index, nil
}

func (s *Service) loadFragments() ([]*model.Fragment, error) {
	path := filepath.Join(s.root, JournalFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	defer f.Close()

	frags, err := ReadFragments(f, JournalFile)
	if err != nil {
		return nil, fmt.Errorf("reading journal %s: %w", path, err)
	}
	return frags, nil
}

// Append adds fragments to the book's journal.csv, creating the file and
// header if needed. It validates the fragments by booking the whole book
// including them first, so a bad import never lands on disk.
func (s *Service) Append(frags []*model.Fragment) error {
	if len(frags) == 0 {
		return nil
	}

	existing, err := s.loadFragments()
	if err != nil {
		return err
	}

	cfg, err := config.Load(filepath.Join(s.root, ConfigFile))
	if err != nil {
		return err
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	prices, err := s.loadPrices(reg)
	if err != nil {
		return err
	}

	all := make([]*model.Fragment, 0, len(existing)+len(frags))
	all = append(all, existing...)
	all = append(all, frags...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

	engine := booking.NewEngine(reg, prices, ledger.NewRunning(), booking.Config{
		AutoBalance:       cfg.AutoBalance,
		AdjustmentAccount: cfg.AdjustmentAccount,
		CommissionAccount: cfg.CommissionAccount,
	})
	if _, err := engine.BookAll(all); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	path := filepath.Join(s.root, JournalFile)
	isNew := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	if isNew {
		if err := WriteFragments(f, frags, len(existing)+1); err != nil {
			return fmt.Errorf("writing journal: %w", err)
		}
		return nil
	}
	if err := AppendFragments(f, frags, len(existing)+1); err != nil {
		return fmt.Errorf("appending journal: %w", err)
	}
	return nil
}
