// Package price stores commodity-pair exchange rates and serves
// "rate effective as of date" lookups with forward-fill semantics: the
// most recent record on or before the query date wins. Records for a
// missing direction fall back to the inverse pair, inverted.
package price

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Record is one exchange-rate observation: one unit of From is worth
// Rate units of To on Date.
type Record struct {
	Date time.Time
	From model.CommodityID
	To   model.CommodityID
	Rate decimal.Decimal
}

type pair struct {
	from, to model.CommodityID
}

// Index is an append-only store of Records, kept per ordered pair in
// date order. Ordering is established at Record time; lookups never
// mutate the index, so independent queries run after booking completes
// may share one Index concurrently. Duplicate dates are preserved with
// the later-appended record after the earlier one, so it wins a lookup
// at that instant.
type Index struct {
	pairs map[pair][]Record
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{pairs: make(map[pair][]Record)}
}

// Record inserts an exchange-rate observation at its date position.
func (x *Index) Record(date time.Time, from, to model.CommodityID, rate decimal.Decimal) {
	p := pair{from: from, to: to}
	recs := x.pairs[p]

	// First index strictly after date, so same-date records keep
	// insertion order.
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Date.After(date) })
	recs = append(recs, Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = Record{Date: date, From: from, To: to, Rate: rate}
	x.pairs[p] = recs
}

// RateAsOf returns the rate from the most recent record with date ≤ d
// for (from, to), or the inverse pair inverted, or false if no record
// exists at or before d in either direction.
func (x *Index) RateAsOf(from, to model.CommodityID, d time.Time) (decimal.Decimal, bool) {
	if rec, ok := latestAtOrBefore(x.pairs[pair{from: from, to: to}], d); ok {
		return rec.Rate, true
	}
	if rec, ok := latestAtOrBefore(x.pairs[pair{from: to, to: from}], d); ok {
		if rec.Rate.IsZero() {
			return decimal.Zero, false
		}
		return decimal.New(1, 0).Div(rec.Rate), true
	}
	return decimal.Zero, false
}

// Latest returns the rate from the most recent record irrespective of
// query date, with the same inverse-pair fallback as RateAsOf.
func (x *Index) Latest(from, to model.CommodityID) (decimal.Decimal, bool) {
	if recs := x.pairs[pair{from: from, to: to}]; len(recs) > 0 {
		return recs[len(recs)-1].Rate, true
	}
	if recs := x.pairs[pair{from: to, to: from}]; len(recs) > 0 {
		rate := recs[len(recs)-1].Rate
		if rate.IsZero() {
			return decimal.Zero, false
		}
		return decimal.New(1, 0).Div(rate), true
	}
	return decimal.Zero, false
}

func latestAtOrBefore(recs []Record, d time.Time) (Record, bool) {
	// First index strictly after d; the record before it is the answer.
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Date.After(d) })
	if i == 0 {
		return Record{}, false
	}
	return recs[i-1], true
}

// Cursor walks one ordered pair's records with monotonically
// non-decreasing query dates, advancing a pointer instead of binary
// searching each lookup. Bulk consumers (booking, historical
// conversion) query in date order, which makes this linear overall.
// A Cursor only reads the Index; concurrent cursors need their own
// instances but may share the Index.
type Cursor struct {
	fwd    []Record
	inv    []Record
	fi, ii int
}

// NewCursor creates a forward cursor over the (from, to) pair.
func NewCursor(x *Index, from, to model.CommodityID) *Cursor {
	return &Cursor{
		fwd: x.pairs[pair{from: from, to: to}],
		inv: x.pairs[pair{from: to, to: from}],
	}
}

// RateAsOf behaves like Index.RateAsOf but requires query dates to be
// non-decreasing across calls on the same Cursor.
func (c *Cursor) RateAsOf(d time.Time) (decimal.Decimal, bool) {
	for c.fi < len(c.fwd) && !c.fwd[c.fi].Date.After(d) {
		c.fi++
	}
	if c.fi > 0 {
		return c.fwd[c.fi-1].Rate, true
	}
	for c.ii < len(c.inv) && !c.inv[c.ii].Date.After(d) {
		c.ii++
	}
	if c.ii > 0 {
		rate := c.inv[c.ii-1].Rate
		if rate.IsZero() {
			return decimal.Zero, false
		}
		return decimal.New(1, 0).Div(rate), true
	}
	return decimal.Zero, false
}
