// Package journal reads and writes the on-disk book: a journal.csv of
// transaction fragments and a prices.csv of exchange-rate records, plus
// the service that books a whole directory into a queryable ledger.
//
// The CSV codec is deliberately dumb: rate cells are plain decimals that
// become literal rate expressions. The full textual expression grammar
// belongs to the parser collaborator, not to this package.
package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Header is the CSV header for journal.csv.
const Header = "entry,date,code,narration,account,quantity,commodity,rate_kind,rate,rate_commodity,expected_rate,assert_quantity,assert_commodity"

const (
	numFields  = 13
	dateFormat = "2006-01-02"

	colEntry     = 0
	colDate      = 1
	colCode      = 2
	colNarration = 3
	colAccount   = 4
	colQuantity  = 5
	colCommodity = 6
	colRateKind  = 7
	colRate      = 8
	colRateComm  = 9
	colExpected  = 10
	colAssertQty = 11
	colAssertCom = 12
)

// row is one decoded journal.csv line: a posting tagged with its entry
// group and the transaction fields repeated from the group's first row.
type row struct {
	entry     int
	date      time.Time
	code      string
	narration string
	posting   model.FragmentPosting
	line      int
}

// ReadFragments decodes journal.csv from r, grouping consecutive rows
// with the same entry number into one fragment. file is used for source
// references only.
func ReadFragments(r io.Reader, file string) ([]*model.Fragment, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var frags []*model.Fragment
	var current *model.Fragment
	currentEntry := -1

	for i, rec := range records[1:] {
		line := i + 2 // header is line 1
		rw, err := unmarshalRow(rec, line)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		if current == nil || rw.entry != currentEntry {
			current = &model.Fragment{
				Date:      rw.date,
				Code:      rw.code,
				Narration: rw.narration,
				Source:    model.SourceRef{File: file, Line: line},
			}
			frags = append(frags, current)
			currentEntry = rw.entry
		}
		current.Postings = append(current.Postings, rw.posting)
	}
	return frags, nil
}

func unmarshalRow(rec []string, line int) (row, error) {
	entry, err := strconv.Atoi(rec[colEntry])
	if err != nil {
		return row{}, fmt.Errorf("invalid entry %q: %w", rec[colEntry], err)
	}

	date, err := time.Parse(dateFormat, rec[colDate])
	if err != nil {
		return row{}, fmt.Errorf("parsing date %q: %w", rec[colDate], err)
	}

	posting := model.FragmentPosting{Account: rec[colAccount]}

	if rec[colQuantity] != "" {
		qty, err := decimal.NewFromString(rec[colQuantity])
		if err != nil {
			return row{}, fmt.Errorf("parsing quantity %q: %w", rec[colQuantity], err)
		}
		amount := &model.FragmentAmount{Quantity: qty, Commodity: rec[colCommodity]}

		if rec[colRateKind] != "" {
			exchange, err := unmarshalExchange(rec)
			if err != nil {
				return row{}, err
			}
			amount.Exchange = exchange
		}
		posting.Amount = amount
	}

	if rec[colAssertQty] != "" {
		qty, err := decimal.NewFromString(rec[colAssertQty])
		if err != nil {
			return row{}, fmt.Errorf("parsing assertion %q: %w", rec[colAssertQty], err)
		}
		posting.Assertion = &model.FragmentAssertion{Quantity: qty, Commodity: rec[colAssertCom]}
	}

	return row{
		entry:     entry,
		date:      date,
		code:      rec[colCode],
		narration: rec[colNarration],
		posting:   posting,
		line:      line,
	}, nil
}

func unmarshalExchange(rec []string) (*model.FragmentExchange, error) {
	var kind model.ExchangeKind
	switch rec[colRateKind] {
	case "unit":
		kind = model.ExchangeUnit
	case "total":
		kind = model.ExchangeTotal
	default:
		return nil, fmt.Errorf("unknown rate kind %q", rec[colRateKind])
	}

	rate, err := decimal.NewFromString(rec[colRate])
	if err != nil {
		return nil, fmt.Errorf("parsing rate %q: %w", rec[colRate], err)
	}

	exchange := &model.FragmentExchange{
		Kind: kind,
		Rate: model.Rate(rate, rec[colRateComm]),
	}

	if rec[colExpected] != "" {
		expected, err := decimal.NewFromString(rec[colExpected])
		if err != nil {
			return nil, fmt.Errorf("parsing expected rate %q: %w", rec[colExpected], err)
		}
		exchange.Expected = model.Rate(expected, rec[colRateComm])
	}
	return exchange, nil
}

// WriteFragments writes fragments to w (including header), numbering
// entries sequentially from startEntry.
func WriteFragments(w io.Writer, frags []*model.Fragment, startEntry int) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return appendFragments(cw, frags, startEntry)
}

// AppendFragments appends fragments to an existing journal.csv writer
// (no header).
func AppendFragments(w io.Writer, frags []*model.Fragment, startEntry int) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	return appendFragments(cw, frags, startEntry)
}

func appendFragments(cw *csv.Writer, frags []*model.Fragment, startEntry int) error {
	for i, frag := range frags {
		for _, p := range frag.Postings {
			rec, err := marshalPosting(frag, p, startEntry+i)
			if err != nil {
				return err
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
	}
	return cw.Error()
}

func marshalPosting(frag *model.Fragment, p model.FragmentPosting, entry int) ([]string, error) {
	rec := make([]string, numFields)
	rec[colEntry] = strconv.Itoa(entry)
	rec[colDate] = frag.Date.Format(dateFormat)
	rec[colCode] = frag.Code
	rec[colNarration] = frag.Narration
	rec[colAccount] = p.Account

	if p.Amount != nil {
		rec[colQuantity] = p.Amount.Quantity.String()
		rec[colCommodity] = p.Amount.Commodity

		if ex := p.Amount.Exchange; ex != nil {
			if ex.Kind == model.ExchangeTotal {
				rec[colRateKind] = "total"
			} else {
				rec[colRateKind] = "unit"
			}
			rate, ok := ex.Rate.(model.ExprAmount)
			if !ok {
				return nil, fmt.Errorf("cannot serialize non-literal rate %q", ex.Rate)
			}
			rec[colRate] = rate.Quantity.String()
			rec[colRateComm] = rate.Commodity
			if ex.Expected != nil {
				expected, ok := ex.Expected.(model.ExprAmount)
				if !ok {
					return nil, fmt.Errorf("cannot serialize non-literal expected rate %q", ex.Expected)
				}
				rec[colExpected] = expected.Quantity.String()
			}
		}
	}

	if p.Assertion != nil {
		rec[colAssertQty] = p.Assertion.Quantity.String()
		rec[colAssertCom] = p.Assertion.Commodity
	}
	return rec, nil
}
