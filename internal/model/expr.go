package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Expr is a rate expression tree as produced by the grammar collaborator.
// Nodes are pure data; evaluation lives in the rateexpr package so that
// it can consult the price index without this package depending on it.
type Expr interface {
	exprNode()
	String() string
}

// ExprNumber is a dimensionless scalar literal.
type ExprNumber struct {
	Value decimal.Decimal
}

// ExprAmount is a quantity in a raw (pre-alias) commodity.
type ExprAmount struct {
	Quantity  decimal.Decimal
	Commodity string
}

// ExprPrice references the price of one commodity in another, valued at
// the enclosing transaction's date.
type ExprPrice struct {
	Of string
	In string
}

// ExprPosting references the already-resolved native amount of another
// posting in the same transaction, by position. Postings resolve in
// order, so a reference must point at a posting resolved earlier.
type ExprPosting struct {
	Index int
}

// ExprBinary applies an arithmetic operator to two subexpressions.
type ExprBinary struct {
	Op   byte // one of '+', '-', '*', '/'
	L, R Expr
}

func (ExprNumber) exprNode()  {}
func (ExprAmount) exprNode()  {}
func (ExprPrice) exprNode()   {}
func (ExprPosting) exprNode() {}
func (ExprBinary) exprNode()  {}

func (e ExprNumber) String() string  { return e.Value.String() }
func (e ExprAmount) String() string  { return e.Quantity.String() + " " + e.Commodity }
func (e ExprPrice) String() string   { return fmt.Sprintf("price(%s, %s)", e.Of, e.In) }
func (e ExprPosting) String() string { return fmt.Sprintf("posting(%d)", e.Index) }
func (e ExprBinary) String() string {
	return fmt.Sprintf("(%s %c %s)", e.L, e.Op, e.R)
}

// Rate builds the common case: a plain recorded rate literal.
func Rate(quantity decimal.Decimal, commodity string) Expr {
	return ExprAmount{Quantity: quantity, Commodity: commodity}
}
