package export

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleBook() (*model.Registry, []*model.Transaction) {
	reg := model.NewRegistry()
	jpy := reg.Commodity("JPY")
	chf := reg.Commodity("CHF")
	cash := reg.Account("Assets:Cash")
	groceries := reg.Account("Expenses:Groceries")
	fx := reg.Account("Assets:FX")

	txns := []*model.Transaction{
		{
			Date:      date("2025-01-10"),
			Narration: "groceries",
			Source:    model.SourceRef{File: "journal.csv", Line: 2},
			Postings: []model.Posting{
				{Account: groceries, Amount: model.NewAmount(model.SingleAmount{Commodity: jpy, Quantity: dec("500")})},
				{Account: cash, Amount: model.NewAmount(model.SingleAmount{Commodity: jpy, Quantity: dec("-500")})},
			},
		},
		{
			Date:      date("2025-01-12"),
			Code:      "fx1",
			Narration: "buy francs",
			Source:    model.SourceRef{File: "journal.csv", Line: 4},
			Postings: []model.Posting{
				{
					Account: fx,
					Amount:  model.NewAmount(model.SingleAmount{Commodity: chf, Quantity: dec("2")}),
					Exchange: &model.Exchange{
						Rate:      dec("100.5"),
						Commodity: jpy,
						Balancing: model.SingleAmount{Commodity: jpy, Quantity: dec("201")},
					},
				},
				{Account: cash, Amount: model.NewAmount(model.SingleAmount{Commodity: jpy, Quantity: dec("-201")})},
			},
		},
	}
	return reg, txns
}

func TestWrite(t *testing.T) {
	reg, txns := sampleBook()

	var sb strings.Builder
	require.NoError(t, Write(&sb, reg, txns))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, Header, lines[0])
	assert.Equal(t, "2025-01-10,,groceries,Expenses:Groceries,500,JPY,,", lines[1])
	assert.Equal(t, "2025-01-10,,groceries,Assets:Cash,-500,JPY,,", lines[2])
	assert.Equal(t, "2025-01-12,fx1,buy francs,Assets:FX,2,CHF,100.5,JPY", lines[3])
	assert.Equal(t, "2025-01-12,fx1,buy francs,Assets:Cash,-201,JPY,,", lines[4])
}

func TestWrite_Empty(t *testing.T) {
	reg := model.NewRegistry()
	var sb strings.Builder
	require.NoError(t, Write(&sb, reg, nil))
	assert.Equal(t, Header+"\n", sb.String())
}

func TestMarshalPosting_MultiCommodity(t *testing.T) {
	reg := model.NewRegistry()
	jpy := reg.Commodity("JPY")
	chf := reg.Commodity("CHF")
	adj := reg.Account("Equity:Adjustments")

	txn := &model.Transaction{
		Date:      date("2025-02-01"),
		Narration: "adjustment",
	}
	p := model.Posting{
		Account: adj,
		Amount: model.NewAmount(
			model.SingleAmount{Commodity: jpy, Quantity: dec("-3")},
			model.SingleAmount{Commodity: chf, Quantity: dec("0.1")},
		),
	}

	rows := MarshalPosting(reg, txn, p)
	require.Len(t, rows, 2)
	// One row per commodity, canonical order.
	assert.Equal(t, "JPY", rows[0][colCommodity])
	assert.Equal(t, "CHF", rows[1][colCommodity])
	assert.Equal(t, "-3", rows[0][colQuantity])
	assert.Equal(t, "0.1", rows[1][colQuantity])
}
