package booking

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// UndeduciblePostingAmountError reports a transaction with more than one
// elided posting, naming the offending accounts.
type UndeduciblePostingAmountError struct {
	Source   model.SourceRef
	Accounts []string
}

func (e *UndeduciblePostingAmountError) Error() string {
	return fmt.Sprintf("%s: cannot deduce posting amounts: more than one elided posting (%s)",
		e.Source, strings.Join(e.Accounts, ", "))
}

// ResidualEntry is one unbalanced commodity in an ImbalanceError.
type ResidualEntry struct {
	Commodity string
	Quantity  decimal.Decimal
}

// ImbalanceError reports a nonzero residual per commodity with
// auto-balancing disabled.
type ImbalanceError struct {
	Source   model.SourceRef
	Residual []ResidualEntry
}

func (e *ImbalanceError) Error() string {
	parts := make([]string, len(e.Residual))
	for i, r := range e.Residual {
		parts[i] = r.Quantity.String() + " " + r.Commodity
	}
	return fmt.Sprintf("%s: transaction does not balance: %s", e.Source, strings.Join(parts, ", "))
}

// AssertionError reports a balance assertion whose declared balance does
// not match the running balance after the posting applied.
type AssertionError struct {
	Source    model.SourceRef
	Account   string
	Commodity string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: balance assertion failed for %s: expected %s %s, got %s %s",
		e.Source, e.Account, e.Expected, e.Commodity, e.Actual, e.Commodity)
}

// ExchangeSameCommodityError reports a rate annotation converting a
// commodity to itself, e.g. "1 EUR @ 5 EUR". This is a modeling error
// and is rejected unconditionally.
type ExchangeSameCommodityError struct {
	Source    model.SourceRef
	Commodity string
}

func (e *ExchangeSameCommodityError) Error() string {
	return fmt.Sprintf("%s: exchange rate converts %s to itself", e.Source, e.Commodity)
}
