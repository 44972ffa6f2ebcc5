package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricesHeader is the CSV header for prices.csv.
const PricesHeader = "date,from,to,rate"

const (
	pricesNumFields = 4
	colPriceDate    = 0
	colPriceFrom    = 1
	colPriceTo      = 2
	colPriceRate    = 3
)

// PriceRow is one decoded prices.csv line, still carrying raw commodity
// names; the service resolves them through the registry.
type PriceRow struct {
	Date time.Time
	From string
	To   string
	Rate decimal.Decimal
}

// ReadPrices decodes prices.csv from r.
func ReadPrices(r io.Reader) ([]PriceRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = pricesNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading prices CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rows []PriceRow
	for i, rec := range records[1:] {
		date, err := time.Parse(dateFormat, rec[colPriceDate])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", i+2, rec[colPriceDate], err)
		}
		rate, err := decimal.NewFromString(rec[colPriceRate])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing rate %q: %w", i+2, rec[colPriceRate], err)
		}
		rows = append(rows, PriceRow{
			Date: date,
			From: rec[colPriceFrom],
			To:   rec[colPriceTo],
			Rate: rate,
		})
	}
	return rows, nil
}

// WritePrices writes price rows to w (including header).
func WritePrices(w io.Writer, rows []PriceRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(PricesHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range rows {
		rec := []string{
			row.Date.Format(dateFormat),
			row.From,
			row.To,
			row.Rate.String(),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing price row: %w", err)
		}
	}
	return cw.Error()
}
