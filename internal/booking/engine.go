// Package booking converts parsed transaction fragments into balanced,
// committed transactions. Each fragment goes through four ordered passes:
// direct amounts, rate resolution, converted-total append, and balance
// closure. The pass ordering is what makes hidden-fee resolution work
// while keeping the common case a single direct pass.
package booking

import (
	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/price"
	"github.com/tallybook-dev/tallybook/internal/rateexpr"
)

// Config carries the booking knobs from configuration: whether residual
// imbalance is absorbed or fatal, and the accounts that absorb residuals
// and hidden-fee commissions.
type Config struct {
	AutoBalance       bool
	AdjustmentAccount string
	CommissionAccount string
}

// Engine books fragments one at a time against a shared running balance.
// It is single-owner state: one engine, one booking pass, no concurrent
// use. The running balance is mutated monotonically and never rolled
// back; a failed transaction aborts the whole run.
type Engine struct {
	reg     *model.Registry
	prices  *price.Index
	cfg     Config
	running *ledger.Running
}

// NewEngine creates a booking engine. The running balance is owned by
// the caller so that assertions and later queries observe the same state.
func NewEngine(reg *model.Registry, prices *price.Index, running *ledger.Running, cfg Config) *Engine {
	return &Engine{reg: reg, prices: prices, cfg: cfg, running: running}
}

// Running exposes the shared running balance.
func (e *Engine) Running() *ledger.Running { return e.running }

// passState carries one fragment through the four booking passes.
type passState struct {
	frag       *model.Fragment
	postings   []model.Posting     // same order as frag.Postings
	assertions []*model.FragmentAssertion
	imbalance  model.Amount // per-commodity running total of balancing amounts
	elided     []int        // indexes of postings with no explicit amount
	commission model.Amount // hidden-fee commission accumulated in the rate pass
}

// Book resolves, validates, and commits one fragment. On success the
// running balance reflects every posting and the returned transaction is
// immutable.
func (e *Engine) Book(frag *model.Fragment) (*model.Transaction, error) {
	st := &passState{
		frag:       frag,
		postings:   make([]model.Posting, len(frag.Postings)),
		assertions: make([]*model.FragmentAssertion, len(frag.Postings)),
	}

	e.directPass(st)
	if err := e.ratePass(st); err != nil {
		return nil, err
	}
	e.appendPass(st)
	if err := e.closurePass(st); err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		Date:      frag.Date,
		Code:      frag.Code,
		Narration: frag.Narration,
		Postings:  st.postings,
		Source:    frag.Source,
	}

	if err := e.applyAndAssert(st, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// directPass (pass 1) resolves explicit, unconverted amounts and feeds
// them into the imbalance vector. Elided postings are noted for closure.
func (e *Engine) directPass(st *passState) {
	for i, fp := range st.frag.Postings {
		account := e.reg.Account(fp.Account)
		st.postings[i] = model.Posting{Account: account, Metadata: fp.Metadata}
		st.assertions[i] = fp.Assertion

		switch {
		case fp.Amount == nil:
			st.elided = append(st.elided, i)
		case fp.Amount.Exchange == nil:
			single := model.SingleAmount{
				Commodity: e.reg.Commodity(fp.Amount.Commodity),
				Quantity:  fp.Amount.Quantity,
			}
			st.postings[i].Amount = model.NewAmount(single)
			st.imbalance = st.imbalance.AddSingle(single)
		}
	}
}

// ratePass (pass 2) evaluates rate annotations against the price index
// and resolves converted totals. With a declared expected rate the
// posting balances at the rate-implied total and the difference to the
// recorded total accumulates as a hidden-fee commission.
func (e *Engine) ratePass(st *passState) error {
	// Posting references see the direct-pass results plus any rate
	// posting already resolved earlier in this loop.
	env := &rateexpr.Env{
		Registry: e.reg,
		Prices:   e.prices,
		Date:     st.frag.Date,
		Source:   st.frag.Source,
		Postings: st.postings,
	}

	for i, fp := range st.frag.Postings {
		if fp.Amount == nil || fp.Amount.Exchange == nil {
			continue
		}
		ex := fp.Amount.Exchange
		commodity := e.reg.Commodity(fp.Amount.Commodity)
		qty := fp.Amount.Quantity

		rate, err := rateexpr.Eval(ex.Rate, env)
		if err != nil {
			return err
		}
		if rate.IsScalar() {
			return &rateexpr.EvalError{Expr: ex.Rate, Source: st.frag.Source, Reason: "exchange rate must name a commodity"}
		}
		if rate.Commodity == commodity {
			return &ExchangeSameCommodityError{
				Source:    st.frag.Source,
				Commodity: e.reg.CommodityName(commodity),
			}
		}

		unitRate, recordedTotal := resolveRecorded(ex.Kind, qty, rate.Quantity)
		balancing := recordedTotal

		if ex.Expected != nil {
			expected, err := rateexpr.Eval(ex.Expected, env)
			if err != nil {
				return err
			}
			if expected.Commodity != rate.Commodity {
				return &rateexpr.EvalError{
					Expr:   ex.Expected,
					Source: st.frag.Source,
					Reason: "expected rate commodity does not match the recorded rate",
				}
			}
			// Balance at the rate-implied total; the gap between what was
			// actually exchanged and what the true rate implies is the
			// hidden commission.
			expectedTotal := qty.Mul(expected.Quantity)
			balancing = expectedTotal
			st.commission = st.commission.AddSingle(model.SingleAmount{
				Commodity: rate.Commodity,
				Quantity:  recordedTotal.Sub(expectedTotal),
			})
		}

		st.postings[i].Amount = model.NewAmount(model.SingleAmount{Commodity: commodity, Quantity: qty})
		st.postings[i].Exchange = &model.Exchange{
			Rate:      unitRate,
			Commodity: rate.Commodity,
			Balancing: model.SingleAmount{Commodity: rate.Commodity, Quantity: balancing},
		}
	}
	return nil
}

// resolveRecorded turns a rate annotation into the resolved unit rate
// and the signed converted total. Total prices are unsigned in input and
// take the posting quantity's sign.
func resolveRecorded(kind model.ExchangeKind, qty, rate decimal.Decimal) (unitRate, total decimal.Decimal) {
	if kind == model.ExchangeTotal {
		// A zero lot exchanges nothing, whatever the stated total.
		if qty.IsZero() {
			return decimal.Zero, decimal.Zero
		}
		total = rate.Abs()
		if qty.IsNegative() {
			total = total.Neg()
		}
		unitRate = total.Div(qty).Abs()
		return unitRate, total
	}
	return rate, qty.Mul(rate)
}

// appendPass (pass 3) folds the resolved converted totals into the
// imbalance vector and appends the commission posting when the rate pass
// produced one.
func (e *Engine) appendPass(st *passState) {
	for i := range st.postings {
		if st.postings[i].Exchange != nil {
			st.imbalance = st.imbalance.AddSingle(st.postings[i].Exchange.Balancing)
		}
	}

	if !st.commission.IsZero() {
		account := e.reg.Account(e.cfg.CommissionAccount)
		st.postings = append(st.postings, model.Posting{Account: account, Amount: st.commission})
		st.assertions = append(st.assertions, nil)
		st.imbalance = st.imbalance.Add(st.commission)
	}
}

// closurePass (pass 4) fixes the single elided posting to the negated
// residual, then either absorbs or rejects whatever imbalance remains.
func (e *Engine) closurePass(st *passState) error {
	if len(st.elided) > 1 {
		accounts := make([]string, len(st.elided))
		for i, idx := range st.elided {
			accounts[i] = e.reg.AccountName(st.postings[idx].Account)
		}
		return &UndeduciblePostingAmountError{Source: st.frag.Source, Accounts: accounts}
	}

	if len(st.elided) == 1 {
		idx := st.elided[0]
		st.postings[idx].Amount = st.imbalance.Neg()
		st.imbalance = model.Amount{}
	}

	if st.imbalance.IsZero() {
		return nil
	}

	if !e.cfg.AutoBalance {
		entries := st.imbalance.Entries()
		residual := make([]ResidualEntry, len(entries))
		for i, entry := range entries {
			residual[i] = ResidualEntry{
				Commodity: e.reg.CommodityName(entry.Commodity),
				Quantity:  entry.Quantity,
			}
		}
		return &ImbalanceError{Source: st.frag.Source, Residual: residual}
	}

	// One corrective posting per residual commodity.
	account := e.reg.Account(e.cfg.AdjustmentAccount)
	for _, entry := range st.imbalance.Entries() {
		st.postings = append(st.postings, model.Posting{
			Account: account,
			Amount:  model.NewAmount(entry.Neg()),
		})
		st.assertions = append(st.assertions, nil)
	}
	st.imbalance = model.Amount{}
	return nil
}

// applyAndAssert folds resolved postings into the running balance in
// posting order, checking each posting's assertion immediately after its
// own fold so a later posting to the same account cannot mask a failure.
func (e *Engine) applyAndAssert(st *passState, tx *model.Transaction) error {
	for i, p := range st.postings {
		e.running.Apply(p.Account, p.Amount)

		assert := st.assertions[i]
		if assert == nil {
			continue
		}
		commodity := e.reg.Commodity(assert.Commodity)
		actual := e.running.Amount(p.Account).Get(commodity)
		if !actual.Equal(assert.Quantity) {
			return &AssertionError{
				Source:    tx.Source,
				Account:   e.reg.AccountName(p.Account),
				Commodity: assert.Commodity,
				Expected:  assert.Quantity,
				Actual:    actual,
			}
		}
	}
	return nil
}

// BookAll books fragments in order, failing fast on the first error. The
// caller must hand over fragments already sorted into canonical total
// order (date, then input order).
func (e *Engine) BookAll(frags []*model.Fragment) ([]*model.Transaction, error) {
	txs := make([]*model.Transaction, 0, len(frags))
	for _, frag := range frags {
		tx, err := e.Book(frag)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
