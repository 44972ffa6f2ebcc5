package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/config"
	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
)

func writeBook(t *testing.T, journal, prices string) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default("USD")
	require.NoError(t, config.Save(filepath.Join(dir, ConfigFile), cfg))

	if journal != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, JournalFile), []byte(journal), 0o644))
	}
	if prices != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, PricesFile), []byte(prices), 0o644))
	}
	return dir
}

const serviceJournal = `entry,date,code,narration,account,quantity,commodity,rate_kind,rate,rate_commodity,expected_rate,assert_quantity,assert_commodity
1,2024-01-15,,Groceries,Expenses:Food,1000,JPY,,,,,,
1,2024-01-15,,Groceries,Assets:Cash,,,,,,,-500,JPY
2,2024-01-10,,Opening,Assets:Cash,500,JPY,,,,,,
2,2024-01-10,,Opening,Equity:Opening,,,,,,,,
`

const servicePrices = `date,from,to,rate
2024-01-01,JPY,USD,0.0067
2024-06-01,JPY,USD,0.0071
`

func TestService_LoadBooksInDateOrder(t *testing.T) {
	// Entry 2 is dated before entry 1; the assertion in entry 1 only
	// holds if booking re-sorts into date order first.
	dir := writeBook(t, serviceJournal, servicePrices)

	book, err := NewService(dir).Load()
	require.NoError(t, err)
	require.Len(t, book.Transactions, 2)
	assert.Equal(t, "Opening", book.Transactions[0].Narration)

	jpy := book.Registry.Commodity("JPY")
	cash := book.Registry.Account("Assets:Cash")
	checkpoints := book.History.Checkpoints(cash)
	require.NotEmpty(t, checkpoints)
	last := checkpoints[len(checkpoints)-1]
	assert.True(t, last.Balance.Get(jpy).Equal(dec("-500")))
}

func TestService_LoadQueryConversion(t *testing.T) {
	dir := writeBook(t, serviceJournal, servicePrices)

	book, err := NewService(dir).Load()
	require.NoError(t, err)

	usd := book.Registry.Commodity("USD")
	rows, err := book.Queries.Balance(ledger.Query{
		Account:    book.Queries.SubtreeFilter("Expenses"),
		Conversion: ledger.Historical(usd),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Get(usd).Equal(dec("6.7")))
}

func TestService_LoadFailsOnImbalance(t *testing.T) {
	bad := Header + "\n" +
		"1,2024-01-15,,Broken,Expenses:Food,1000,JPY,,,,,,\n" +
		"1,2024-01-15,,Broken,Assets:Cash,-999,JPY,,,,,,\n"
	dir := writeBook(t, bad, "")

	_, err := NewService(dir).Load()
	assert.Error(t, err)
}

func TestService_LoadMissingJournalIsEmptyBook(t *testing.T) {
	dir := writeBook(t, "", "")

	book, err := NewService(dir).Load()
	require.NoError(t, err)
	assert.Empty(t, book.Transactions)
}

func TestService_AppendValidatesBeforeWriting(t *testing.T) {
	dir := writeBook(t, serviceJournal, "")
	svc := NewService(dir)

	unbalanced := []*model.Fragment{
		{
			Date: date(2024, 2, 1),
			Postings: []model.FragmentPosting{
				{Account: "Expenses:Food", Amount: &model.FragmentAmount{Quantity: dec("100"), Commodity: "JPY"}},
				{Account: "Assets:Cash", Amount: &model.FragmentAmount{Quantity: dec("-99"), Commodity: "JPY"}},
			},
		},
	}
	require.Error(t, svc.Append(unbalanced))

	// The journal on disk is untouched: it still books cleanly.
	book, err := svc.Load()
	require.NoError(t, err)
	assert.Len(t, book.Transactions, 2)
}

func TestService_AppendThenLoad(t *testing.T) {
	dir := writeBook(t, serviceJournal, "")
	svc := NewService(dir)

	frags := []*model.Fragment{
		{
			Date:      date(2024, 2, 1),
			Narration: "Lunch",
			Postings: []model.FragmentPosting{
				{Account: "Expenses:Food", Amount: &model.FragmentAmount{Quantity: dec("800"), Commodity: "JPY"}},
				{Account: "Assets:Cash"},
			},
		},
	}
	require.NoError(t, svc.Append(frags))

	book, err := svc.Load()
	require.NoError(t, err)
	require.Len(t, book.Transactions, 3)

	jpy := book.Registry.Commodity("JPY")
	cash := book.Registry.Account("Assets:Cash")
	checkpoints := book.History.Checkpoints(cash)
	last := checkpoints[len(checkpoints)-1]
	assert.True(t, last.Balance.Get(jpy).Equal(dec("-1300")))
}
