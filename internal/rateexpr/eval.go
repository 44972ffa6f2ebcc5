// Package rateexpr evaluates exchange-rate expression trees against the
// price index. Evaluation is pure: its only context is the registry, the
// price index, and the enclosing transaction's date. It runs strictly
// before the booking closure pass and never mutates anything.
package rateexpr

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/price"
)

// Env is the evaluation context for one transaction. Postings holds the
// transaction's postings in order, with amounts filled in as far as
// resolution has progressed; a posting reference to a slot that is still
// empty is an evaluation error.
type Env struct {
	Registry *model.Registry
	Prices   *price.Index
	Date     time.Time
	Source   model.SourceRef
	Postings []model.Posting
}

// Value is an evaluated expression result. A NoCommodity commodity means
// the value is a dimensionless scalar.
type Value struct {
	Quantity  decimal.Decimal
	Commodity model.CommodityID
}

// IsScalar reports whether the value carries no commodity.
func (v Value) IsScalar() bool { return v.Commodity == model.NoCommodity }

// EvalError reports an expression that could not be evaluated: an
// unresolved price reference, a commodity mismatch, or division by zero
// or by an undefined price.
type EvalError struct {
	Expr   model.Expr
	Source model.SourceRef
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: cannot evaluate %q: %s", e.Source, e.Expr, e.Reason)
}

// Eval evaluates expr under env.
func Eval(expr model.Expr, env *Env) (Value, error) {
	switch e := expr.(type) {
	case model.ExprNumber:
		return Value{Quantity: e.Value}, nil

	case model.ExprAmount:
		return Value{Quantity: e.Quantity, Commodity: env.Registry.Commodity(e.Commodity)}, nil

	case model.ExprPrice:
		of := env.Registry.Commodity(e.Of)
		in := env.Registry.Commodity(e.In)
		rate, ok := env.Prices.RateAsOf(of, in, env.Date)
		if !ok {
			return Value{}, &EvalError{
				Expr:   expr,
				Source: env.Source,
				Reason: fmt.Sprintf("no price for %s in %s as of %s", e.Of, e.In, env.Date.Format("2006-01-02")),
			}
		}
		return Value{Quantity: rate, Commodity: in}, nil

	case model.ExprPosting:
		if e.Index < 0 || e.Index >= len(env.Postings) {
			return Value{}, &EvalError{
				Expr:   expr,
				Source: env.Source,
				Reason: fmt.Sprintf("posting %d does not exist", e.Index),
			}
		}
		entries := env.Postings[e.Index].Amount.Entries()
		switch len(entries) {
		case 0:
			return Value{}, &EvalError{
				Expr:   expr,
				Source: env.Source,
				Reason: fmt.Sprintf("posting %d is not resolved yet", e.Index),
			}
		case 1:
			return Value{Quantity: entries[0].Quantity, Commodity: entries[0].Commodity}, nil
		default:
			return Value{}, &EvalError{
				Expr:   expr,
				Source: env.Source,
				Reason: fmt.Sprintf("posting %d carries more than one commodity", e.Index),
			}
		}

	case model.ExprBinary:
		l, err := Eval(e.L, env)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(e.R, env)
		if err != nil {
			return Value{}, err
		}
		return apply(expr, e.Op, l, r, env)

	default:
		return Value{}, &EvalError{Expr: expr, Source: env.Source, Reason: "unknown expression node"}
	}
}

func apply(expr model.Expr, op byte, l, r Value, env *Env) (Value, error) {
	fail := func(reason string) (Value, error) {
		return Value{}, &EvalError{Expr: expr, Source: env.Source, Reason: reason}
	}

	switch op {
	case '+', '-':
		if l.Commodity != r.Commodity {
			return fail("addition requires matching commodities")
		}
		q := l.Quantity.Add(r.Quantity)
		if op == '-' {
			q = l.Quantity.Sub(r.Quantity)
		}
		return Value{Quantity: q, Commodity: l.Commodity}, nil

	case '*':
		if !l.IsScalar() && !r.IsScalar() {
			return fail("cannot multiply two commodity amounts")
		}
		c := l.Commodity
		if c == model.NoCommodity {
			c = r.Commodity
		}
		return Value{Quantity: l.Quantity.Mul(r.Quantity), Commodity: c}, nil

	case '/':
		if r.Quantity.IsZero() {
			return fail("division by zero")
		}
		switch {
		case r.IsScalar():
			return Value{Quantity: l.Quantity.Div(r.Quantity), Commodity: l.Commodity}, nil
		case l.Commodity == r.Commodity:
			return Value{Quantity: l.Quantity.Div(r.Quantity)}, nil
		default:
			return fail("cannot divide amounts of different commodities")
		}

	default:
		return fail(fmt.Sprintf("unknown operator %q", string(op)))
	}
}
