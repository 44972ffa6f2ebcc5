// Package export flattens committed transactions into CSV rows, one row
// per posting, for downstream tooling. Unlike the journal codec this is
// write-only: the rows carry resolved amounts and rates, not the raw
// fragments booking consumes.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Header is the CSV header for exported register rows.
const Header = "date,code,narration,account,quantity,commodity,rate,rate_commodity"

const (
	numFields  = 8
	dateFormat = "2006-01-02"

	colDate      = 0
	colCode      = 1
	colNarration = 2
	colAccount   = 3
	colQuantity  = 4
	colCommodity = 5
	colRate      = 6
	colRateCcy   = 7
)

// MarshalPosting converts one committed posting to CSV rows, one per
// commodity entry in its amount.
func MarshalPosting(reg *model.Registry, txn *model.Transaction, p model.Posting) [][]string {
	var rows [][]string
	for _, entry := range p.Amount.Entries() {
		row := make([]string, numFields)
		row[colDate] = txn.Date.Format(dateFormat)
		row[colCode] = txn.Code
		row[colNarration] = txn.Narration
		row[colAccount] = reg.AccountName(p.Account)
		row[colQuantity] = entry.Quantity.String()
		row[colCommodity] = reg.CommodityName(entry.Commodity)
		if p.Exchange != nil {
			row[colRate] = p.Exchange.Rate.String()
			row[colRateCcy] = reg.CommodityName(p.Exchange.Commodity)
		}
		rows = append(rows, row)
	}
	return rows
}

// Write dumps transactions to w as CSV, header first.
func Write(w io.Writer, reg *model.Registry, txns []*model.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, txn := range txns {
		for _, p := range txn.Postings {
			for _, row := range MarshalPosting(reg, txn, p) {
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("writing %s: %w", txn.Source, err)
				}
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
