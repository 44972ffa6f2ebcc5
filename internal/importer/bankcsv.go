package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// BankCSVParser parses generic bank CSV exports with
// date,description,amount,currency columns. Negative amounts are
// expenses, positive amounts income.
type BankCSVParser struct{}

const (
	bankDateFormat = "2006-01-02"
	bankNumFields  = 4
	bankColDate    = 0
	bankColDesc    = 1
	bankColAmount  = 2
	bankColCcy     = 3
)

// Format returns the parser name.
func (p *BankCSVParser) Format() string { return "bankcsv" }

// Parse reads a bank CSV and returns two-posting fragments: the asset
// account on the bank side, an elided category posting on the other.
func (p *BankCSVParser) Parse(r io.Reader, opts Options) ([]*model.Fragment, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = bankNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bank CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var frags []*model.Fragment
	for i, rec := range records[1:] {
		frag, err := p.parseRow(rec, i+2, opts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		frags = append(frags, frag)
	}
	return frags, nil
}

func (p *BankCSVParser) parseRow(rec []string, line int, opts Options) (*model.Fragment, error) {
	date, err := time.Parse(bankDateFormat, rec[bankColDate])
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", rec[bankColDate], err)
	}

	amount, err := decimal.NewFromString(rec[bankColAmount])
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", rec[bankColAmount], err)
	}

	commodity := rec[bankColCcy]
	if commodity == "" {
		commodity = opts.Commodity
	}
	if renamed, ok := opts.RenameCommodity[commodity]; ok {
		commodity = renamed
	}

	category := opts.DefaultExpense
	if amount.IsPositive() {
		category = opts.DefaultIncome
	}

	return &model.Fragment{
		Date:               date,
		Narration:          rec[bankColDesc],
		Source:             model.SourceRef{File: "import", Line: line},
		SecondaryCommodity: opts.SecondaryCommodity,
		Postings: []model.FragmentPosting{
			{
				Account: opts.AssetAccount,
				Amount:  &model.FragmentAmount{Quantity: amount, Commodity: commodity},
			},
			{Account: category},
		},
	}, nil
}
