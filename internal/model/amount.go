package model

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SingleAmount is one (commodity, quantity) pair. It is the intermediate
// shape used before an elided or rate-converted amount is folded into a
// multi-commodity Amount.
type SingleAmount struct {
	Commodity CommodityID
	Quantity  decimal.Decimal
}

// Neg returns the additive inverse.
func (s SingleAmount) Neg() SingleAmount {
	return SingleAmount{Commodity: s.Commodity, Quantity: s.Quantity.Neg()}
}

// Amount is an ordered mapping from commodity to decimal quantity.
// Entries are kept in ascending commodity order and zero-valued entries
// never persist, so iteration order and textual output are deterministic.
// The zero value is an empty Amount ready for use.
type Amount struct {
	entries []SingleAmount
}

// NewAmount builds an Amount from the given parts.
func NewAmount(parts ...SingleAmount) Amount {
	var a Amount
	for _, p := range parts {
		a = a.AddSingle(p)
	}
	return a
}

// IsZero reports whether the Amount has no entries.
func (a Amount) IsZero() bool { return len(a.entries) == 0 }

// Len returns the number of commodities present.
func (a Amount) Len() int { return len(a.entries) }

// Get returns the quantity for commodity c (zero if absent).
func (a Amount) Get(c CommodityID) decimal.Decimal {
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].Commodity >= c })
	if i < len(a.entries) && a.entries[i].Commodity == c {
		return a.entries[i].Quantity
	}
	return decimal.Zero
}

// Has reports whether commodity c is present (with a nonzero quantity).
func (a Amount) Has(c CommodityID) bool {
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].Commodity >= c })
	return i < len(a.entries) && a.entries[i].Commodity == c
}

// Entries returns the entries in canonical ascending-commodity order.
// The returned slice is a copy.
func (a Amount) Entries() []SingleAmount {
	out := make([]SingleAmount, len(a.entries))
	copy(out, a.entries)
	return out
}

// AddSingle returns a new Amount with s merged in. A newly-zeroed entry
// is dropped.
func (a Amount) AddSingle(s SingleAmount) Amount {
	if s.Quantity.IsZero() {
		return a
	}
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].Commodity >= s.Commodity })
	out := make([]SingleAmount, 0, len(a.entries)+1)
	out = append(out, a.entries[:i]...)
	if i < len(a.entries) && a.entries[i].Commodity == s.Commodity {
		sum := a.entries[i].Quantity.Add(s.Quantity)
		if !sum.IsZero() {
			out = append(out, SingleAmount{Commodity: s.Commodity, Quantity: sum})
		}
		out = append(out, a.entries[i+1:]...)
	} else {
		out = append(out, s)
		out = append(out, a.entries[i:]...)
	}
	return Amount{entries: out}
}

// Add returns a + b, merging commodity-wise and dropping zeroed entries.
func (a Amount) Add(b Amount) Amount {
	out := a
	for _, e := range b.entries {
		out = out.AddSingle(e)
	}
	return out
}

// Neg returns the commodity-wise additive inverse.
func (a Amount) Neg() Amount {
	out := make([]SingleAmount, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Neg()
	}
	return Amount{entries: out}
}

// Mul returns the Amount scaled by factor. A zero factor yields the
// empty Amount.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	if factor.IsZero() {
		return Amount{}
	}
	out := make([]SingleAmount, len(a.entries))
	for i, e := range a.entries {
		out[i] = SingleAmount{Commodity: e.Commodity, Quantity: e.Quantity.Mul(factor)}
	}
	return Amount{entries: out}
}

// Equal reports commodity-wise equality.
func (a Amount) Equal(b Amount) bool {
	if len(a.entries) != len(b.entries) {
		return false
	}
	for i, e := range a.entries {
		if e.Commodity != b.entries[i].Commodity || !e.Quantity.Equal(b.entries[i].Quantity) {
			return false
		}
	}
	return true
}

// Format renders the Amount in canonical order using the registry's
// display rules, e.g. "1,234.50 JPY, 2 CHF". Rounding happens here and
// only here; stored quantities are never rounded.
func (a Amount) Format(reg *Registry) string {
	if a.IsZero() {
		return "0"
	}
	parts := make([]string, len(a.entries))
	for i, e := range a.entries {
		parts[i] = FormatQuantity(e.Quantity, reg.DisplayRuleFor(e.Commodity)) + " " + reg.CommodityName(e.Commodity)
	}
	return strings.Join(parts, ", ")
}

// FormatQuantity renders one quantity under a display rule.
func FormatQuantity(q decimal.Decimal, rule DisplayRule) string {
	s := q.StringFixed(rule.Precision)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	if rule.GroupSeparator != "" {
		intPart = groupDigits(intPart, rule.GroupSeparator)
	}

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString(intPart)
	if hasFrac {
		sep := rule.DecimalSeparator
		if sep == "" {
			sep = "."
		}
		b.WriteString(sep)
		b.WriteString(fracPart)
	}
	return b.String()
}

func groupDigits(digits, sep string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
