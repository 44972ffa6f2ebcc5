package ledger

import (
	"sort"
	"time"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Checkpoint is one account's balance immediately after a transaction.
type Checkpoint struct {
	Date    time.Time
	Balance model.Amount
}

// History is the authoritative time-ordered record of committed
// transactions and the per-account balance checkpoints they produce.
// Transactions must be appended in canonical book order (date, then
// input order); the booking driver guarantees this.
type History struct {
	transactions []*model.Transaction
	checkpoints  map[model.AccountID][]Checkpoint
	running      *Running
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{
		checkpoints: make(map[model.AccountID][]Checkpoint),
		running:     NewRunning(),
	}
}

// Append folds one committed transaction into the history, recording a
// new checkpoint for every account the transaction touches.
func (h *History) Append(tx *model.Transaction) {
	h.transactions = append(h.transactions, tx)
	for _, p := range tx.Postings {
		if p.Amount.IsZero() {
			continue
		}
		h.running.Apply(p.Account, p.Amount)
		h.checkpoints[p.Account] = append(h.checkpoints[p.Account], Checkpoint{
			Date:    tx.Date,
			Balance: h.running.Amount(p.Account),
		})
	}
}

// Transactions returns the committed transactions in book order.
func (h *History) Transactions() []*model.Transaction {
	return h.transactions
}

// Checkpoints returns account's balance checkpoints in chronological
// order. The returned slice is shared; callers must not mutate it.
func (h *History) Checkpoints(account model.AccountID) []Checkpoint {
	return h.checkpoints[account]
}

// Accounts returns every account with activity in ascending interned
// order.
func (h *History) Accounts() []model.AccountID {
	out := make([]model.AccountID, 0, len(h.checkpoints))
	for a := range h.checkpoints {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
