package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeKind distinguishes the two ways a posting amount can be priced.
type ExchangeKind int

const (
	// ExchangeUnit prices the amount per unit ("1 CHF @ 100.5 JPY").
	ExchangeUnit ExchangeKind = iota
	// ExchangeTotal prices the whole lot ("100 CHF @@ 10000 JPY").
	ExchangeTotal
)

// String returns "@" for unit rates and "@@" for total prices.
func (k ExchangeKind) String() string {
	if k == ExchangeTotal {
		return "@@"
	}
	return "@"
}

// FragmentExchange is a raw exchange annotation on a fragment posting.
// Rate is an expression tree produced by the grammar collaborator; a
// plain recorded rate arrives as a single ExprAmount node. Expected, when
// set, declares the true underlying unit rate for hidden-fee resolution.
type FragmentExchange struct {
	Kind     ExchangeKind
	Rate     Expr
	Expected Expr
}

// FragmentAmount is a raw posting amount before booking.
type FragmentAmount struct {
	Quantity  decimal.Decimal
	Commodity string
	Exchange  *FragmentExchange // nil = no rate annotation
}

// FragmentAssertion declares the expected balance of the posting's
// account, in one commodity, immediately after the posting applies.
type FragmentAssertion struct {
	Quantity  decimal.Decimal
	Commodity string
}

// FragmentPosting is one raw account-affecting line. A nil Amount means
// the amount is elided and must be deduced by balancing.
type FragmentPosting struct {
	Account   string
	Amount    *FragmentAmount
	Assertion *FragmentAssertion
	Metadata  map[string]string
}

// Fragment is one parsed transaction as handed over by the parser or
// importer collaborator. Posting order is significant: it is both display
// order and assertion-evaluation order.
type Fragment struct {
	Date      time.Time
	Code      string
	Narration string
	Postings  []FragmentPosting
	Source    SourceRef

	// SecondaryCommodity is a hint populated by importers for downstream
	// matching; booking itself ignores it.
	SecondaryCommodity string
}

// Exchange records how a committed posting was priced: the resolved unit
// rate and the total it contributes to transaction balancing in the
// target commodity.
type Exchange struct {
	Rate      decimal.Decimal
	Commodity CommodityID
	Balancing SingleAmount
}

// Posting is one committed account-affecting line. Amount is the native
// amount folded into the account's running balance; for rate-annotated
// postings Exchange carries the converted total used for balancing.
type Posting struct {
	Account  AccountID
	Amount   Amount
	Exchange *Exchange
	Metadata map[string]string
}

// BalancingAmount returns the posting's contribution to the transaction
// imbalance vector: the converted total when a rate annotation is
// present, the native amount otherwise.
func (p Posting) BalancingAmount() Amount {
	if p.Exchange != nil {
		return NewAmount(p.Exchange.Balancing)
	}
	return p.Amount
}

// Transaction is a committed, balanced transaction. It is immutable once
// the booking engine emits it.
type Transaction struct {
	Date      time.Time
	Code      string
	Narration string
	Postings  []Posting
	Source    SourceRef
}
