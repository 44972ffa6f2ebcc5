// Package ledger holds the running per-account balances maintained during
// booking, the chronological balance history built from committed
// transactions, and the balance query engine with its conversion
// strategies.
package ledger

import (
	"sort"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Running is the mutable per-account balance accumulator threaded through
// the booking pass. It is owned by the pipeline driver, not a process-wide
// singleton, so tests can construct isolated instances. Balance assertions
// read it mid-transaction; it is never rolled back.
type Running struct {
	balances map[model.AccountID]model.Amount
}

// NewRunning creates an empty accumulator.
func NewRunning() *Running {
	return &Running{balances: make(map[model.AccountID]model.Amount)}
}

// Apply folds amt into account's balance.
func (r *Running) Apply(account model.AccountID, amt model.Amount) {
	r.balances[account] = r.balances[account].Add(amt)
}

// Amount returns account's current balance (zero Amount if untouched).
func (r *Running) Amount(account model.AccountID) model.Amount {
	return r.balances[account]
}

// Accounts returns every touched account in ascending interned order.
func (r *Running) Accounts() []model.AccountID {
	out := make([]model.AccountID, 0, len(r.balances))
	for a := range r.balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
