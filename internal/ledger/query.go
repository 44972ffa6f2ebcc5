package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/price"
)

// ConversionKind selects how query results are valued. The set is closed;
// switches over it are exhaustive.
type ConversionKind int

const (
	// ConvertNone returns native multi-commodity amounts unmodified.
	ConvertNone ConversionKind = iota
	// ConvertUpToDate converts every non-base commodity at the rate in
	// effect on a single reference date, regardless of posting dates.
	ConvertUpToDate
	// ConvertHistorical converts each posting at the rate in effect on
	// its own date, then sums in the base commodity.
	ConvertHistorical
)

// Conversion is the conversion strategy for a balance query.
type Conversion struct {
	Kind ConversionKind
	Base model.CommodityID
	At   time.Time // reference date for ConvertUpToDate
}

// NoConversion returns the strategy that leaves amounts native.
func NoConversion() Conversion {
	return Conversion{Kind: ConvertNone}
}

// UpToDate returns the single-reference-date strategy.
func UpToDate(base model.CommodityID, at time.Time) Conversion {
	return Conversion{Kind: ConvertUpToDate, Base: base, At: at}
}

// Historical returns the per-posting-date strategy.
func Historical(base model.CommodityID) Conversion {
	return Conversion{Kind: ConvertHistorical, Base: base}
}

// Query describes one balance aggregation. A nil Account predicate
// matches every account; zero From/To leave the range unbounded. To is
// exclusive.
type Query struct {
	Account    func(model.AccountID) bool
	From, To   time.Time
	Conversion Conversion
}

// AccountBalance is one row of a query result.
type AccountBalance struct {
	Account model.AccountID
	Amount  model.Amount
}

// MissingPriceError reports that a conversion strategy required a rate
// the price index cannot supply as of the needed date. A missing price is
// never treated as a zero rate.
type MissingPriceError struct {
	From, To model.CommodityID
	FromName string
	ToName   string
	Date     time.Time
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no price for %s in %s as of %s",
		e.FromName, e.ToName, e.Date.Format("2006-01-02"))
}

// QueryEngine answers aggregate balance queries over a booked History.
// It is read-only; independent queries may share one engine after booking
// completes.
type QueryEngine struct {
	reg     *model.Registry
	prices  *price.Index
	history *History
}

// NewQueryEngine creates a QueryEngine over a fully booked history.
func NewQueryEngine(reg *model.Registry, prices *price.Index, history *History) *QueryEngine {
	return &QueryEngine{reg: reg, prices: prices, history: history}
}

// SubtreeFilter returns a predicate matching the named account and every
// account under it.
func (e *QueryEngine) SubtreeFilter(ancestor string) func(model.AccountID) bool {
	return func(a model.AccountID) bool {
		return e.reg.AccountUnder(a, ancestor)
	}
}

// Balance folds matching postings into per-account amounts and applies
// the conversion strategy. Results come back in ascending interned
// account order.
func (e *QueryEngine) Balance(q Query) ([]AccountBalance, error) {
	switch q.Conversion.Kind {
	case ConvertNone, ConvertUpToDate:
		native := e.aggregateNative(q)
		if q.Conversion.Kind == ConvertNone {
			return native, nil
		}
		return e.convertUpToDate(native, q.Conversion)
	case ConvertHistorical:
		return e.aggregateHistorical(q)
	default:
		return nil, fmt.Errorf("unknown conversion strategy %d", q.Conversion.Kind)
	}
}

func (q Query) matchesDate(d time.Time) bool {
	if !q.From.IsZero() && d.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !d.Before(q.To) {
		return false
	}
	return true
}

func (q Query) matchesAccount(a model.AccountID) bool {
	return q.Account == nil || q.Account(a)
}

func (e *QueryEngine) aggregateNative(q Query) []AccountBalance {
	acc := make(map[model.AccountID]model.Amount)
	for _, tx := range e.history.Transactions() {
		if !q.matchesDate(tx.Date) {
			continue
		}
		for _, p := range tx.Postings {
			if !q.matchesAccount(p.Account) || p.Amount.IsZero() {
				continue
			}
			acc[p.Account] = acc[p.Account].Add(p.Amount)
		}
	}
	return sortBalances(acc)
}

// convertUpToDate converts accumulated amounts as a final mapping step:
// one rate lookup per distinct commodity, applied uniformly.
func (e *QueryEngine) convertUpToDate(native []AccountBalance, conv Conversion) ([]AccountBalance, error) {
	rates := make(map[model.CommodityID]decimal.Decimal)

	out := make([]AccountBalance, 0, len(native))
	for _, ab := range native {
		converted := model.Amount{}
		for _, entry := range ab.Amount.Entries() {
			if entry.Commodity == conv.Base {
				converted = converted.AddSingle(entry)
				continue
			}
			rate, ok := rates[entry.Commodity]
			if !ok {
				var found bool
				rate, found = e.prices.RateAsOf(entry.Commodity, conv.Base, conv.At)
				if !found {
					return nil, e.missingPrice(entry.Commodity, conv.Base, conv.At)
				}
				rates[entry.Commodity] = rate
			}
			converted = converted.AddSingle(model.SingleAmount{
				Commodity: conv.Base,
				Quantity:  entry.Quantity.Mul(rate),
			})
		}
		if !converted.IsZero() {
			out = append(out, AccountBalance{Account: ab.Account, Amount: converted})
		}
	}
	return out, nil
}

// aggregateHistorical fuses conversion into the fold: each posting needs
// the rate at its own date before summing. Transactions arrive in date
// order, so a forward cursor per commodity keeps lookups linear.
func (e *QueryEngine) aggregateHistorical(q Query) ([]AccountBalance, error) {
	cursors := make(map[model.CommodityID]*price.Cursor)
	base := q.Conversion.Base

	acc := make(map[model.AccountID]model.Amount)
	for _, tx := range e.history.Transactions() {
		if !q.matchesDate(tx.Date) {
			continue
		}
		for _, p := range tx.Postings {
			if !q.matchesAccount(p.Account) || p.Amount.IsZero() {
				continue
			}
			for _, entry := range p.Amount.Entries() {
				if entry.Commodity == base {
					acc[p.Account] = acc[p.Account].AddSingle(entry)
					continue
				}
				c, ok := cursors[entry.Commodity]
				if !ok {
					c = price.NewCursor(e.prices, entry.Commodity, base)
					cursors[entry.Commodity] = c
				}
				rate, found := c.RateAsOf(tx.Date)
				if !found {
					return nil, e.missingPrice(entry.Commodity, base, tx.Date)
				}
				acc[p.Account] = acc[p.Account].AddSingle(model.SingleAmount{
					Commodity: base,
					Quantity:  entry.Quantity.Mul(rate),
				})
			}
		}
	}
	return sortBalances(acc), nil
}

func (e *QueryEngine) missingPrice(from, to model.CommodityID, d time.Time) error {
	return &MissingPriceError{
		From:     from,
		To:       to,
		FromName: e.reg.CommodityName(from),
		ToName:   e.reg.CommodityName(to),
		Date:     d,
	}
}

func sortBalances(acc map[model.AccountID]model.Amount) []AccountBalance {
	out := make([]AccountBalance, 0, len(acc))
	for a, amt := range acc {
		if amt.IsZero() {
			continue
		}
		out = append(out, AccountBalance{Account: a, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
