package booking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/price"
	"github.com/tallybook-dev/tallybook/internal/rateexpr"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	reg     *model.Registry
	prices  *price.Index
	running *ledger.Running
	engine  *Engine
}

func newFixture(cfg Config) *fixture {
	reg := model.NewRegistry()
	prices := price.NewIndex()
	running := ledger.NewRunning()
	return &fixture{
		reg:     reg,
		prices:  prices,
		running: running,
		engine:  NewEngine(reg, prices, running, cfg),
	}
}

func explicit(account, quantity, commodity string) model.FragmentPosting {
	return model.FragmentPosting{
		Account: account,
		Amount:  &model.FragmentAmount{Quantity: dec(quantity), Commodity: commodity},
	}
}

func elided(account string) model.FragmentPosting {
	return model.FragmentPosting{Account: account}
}

func withRate(account, quantity, commodity, rate, rateCommodity string) model.FragmentPosting {
	return model.FragmentPosting{
		Account: account,
		Amount: &model.FragmentAmount{
			Quantity:  dec(quantity),
			Commodity: commodity,
			Exchange: &model.FragmentExchange{
				Kind: model.ExchangeUnit,
				Rate: model.Rate(dec(rate), rateCommodity),
			},
		},
	}
}

func frag(d time.Time, postings ...model.FragmentPosting) *model.Fragment {
	return &model.Fragment{
		Date:     d,
		Postings: postings,
		Source:   model.SourceRef{File: "test.journal", Line: 1},
	}
}

// balancingSum sums every posting's balancing contribution per commodity.
func balancingSum(tx *model.Transaction) model.Amount {
	var sum model.Amount
	for _, p := range tx.Postings {
		sum = sum.Add(p.BalancingAmount())
	}
	return sum
}

func TestBook_SimpleElision(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Coffee", "500", "JPY"),
		elided("Assets:Cash"),
	))
	require.NoError(t, err)
	require.Len(t, tx.Postings, 2)

	jpy := f.reg.Commodity("JPY")
	cash := f.reg.Account("Assets:Cash")
	assert.True(t, tx.Postings[1].Amount.Get(jpy).Equal(dec("-500")))
	assert.True(t, f.running.Amount(cash).Get(jpy).Equal(dec("-500")))
	assert.True(t, balancingSum(tx).IsZero())
}

func TestBook_ElisionIsMultiCommodity(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Travel", "100", "USD"),
		explicit("Expenses:Travel", "50", "EUR"),
		elided("Assets:Wallet"),
	))
	require.NoError(t, err)

	usd := f.reg.Commodity("USD")
	eur := f.reg.Commodity("EUR")
	deduced := tx.Postings[2].Amount
	assert.True(t, deduced.Get(usd).Equal(dec("-100")))
	assert.True(t, deduced.Get(eur).Equal(dec("-50")))
}

func TestBook_TwoElidedPostingsFail(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Coffee", "500", "JPY"),
		elided("Assets:Cash"),
		elided("Assets:Wallet"),
	))

	var undErr *UndeduciblePostingAmountError
	require.ErrorAs(t, err, &undErr)
	assert.Equal(t, []string{"Assets:Cash", "Assets:Wallet"}, undErr.Accounts)
}

func TestBook_ImbalanceFailsWithoutAutoBalance(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Coffee", "500", "JPY"),
		explicit("Assets:Cash", "-499", "JPY"),
	))

	var imbErr *ImbalanceError
	require.ErrorAs(t, err, &imbErr)
	require.Len(t, imbErr.Residual, 1)
	assert.Equal(t, "JPY", imbErr.Residual[0].Commodity)
	assert.True(t, imbErr.Residual[0].Quantity.Equal(dec("1")))
}

func TestBook_AutoBalanceAbsorbsResidual(t *testing.T) {
	f := newFixture(Config{AutoBalance: true, AdjustmentAccount: "Equity:Adjustments"})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Coffee", "500", "JPY"),
		explicit("Assets:Cash", "-499", "JPY"),
	))
	require.NoError(t, err)
	require.Len(t, tx.Postings, 3)

	jpy := f.reg.Commodity("JPY")
	adj := f.reg.Account("Equity:Adjustments")
	assert.Equal(t, adj, tx.Postings[2].Account)
	assert.True(t, tx.Postings[2].Amount.Get(jpy).Equal(dec("-1")))
	assert.True(t, balancingSum(tx).IsZero())
}

func TestBook_AutoBalanceIdempotentOnBalanced(t *testing.T) {
	f := newFixture(Config{AutoBalance: true, AdjustmentAccount: "Equity:Adjustments"})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Expenses:Coffee", "500", "JPY"),
		explicit("Assets:Cash", "-500", "JPY"),
	))
	require.NoError(t, err)
	assert.Len(t, tx.Postings, 2, "balanced transaction must not grow a corrective posting")
}

// Two postings of 1 CHF @ 100.5 JPY against -201 JPY must balance
// exactly: the shared rate is never rounded per posting.
func TestBook_SharedRateRoundingNonLeakage(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		withRate("Expenses:Coffee", "1", "CHF", "100.5", "JPY"),
		withRate("Expenses:Coffee", "1", "CHF", "100.5", "JPY"),
		explicit("Assets:Cash", "-201", "JPY"),
	))
	require.NoError(t, err)

	residual := balancingSum(tx)
	assert.True(t, residual.IsZero(), "zero residual in both CHF and JPY, got %v", residual.Entries())

	// Native running balances keep the original commodities.
	chf := f.reg.Commodity("CHF")
	jpy := f.reg.Commodity("JPY")
	coffee := f.reg.Account("Expenses:Coffee")
	cash := f.reg.Account("Assets:Cash")
	assert.True(t, f.running.Amount(coffee).Get(chf).Equal(dec("2")))
	assert.True(t, f.running.Amount(cash).Get(jpy).Equal(dec("-201")))
}

func TestBook_RateAgainstElidedPosting(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		withRate("Assets:CHF", "-100", "CHF", "170", "JPY"),
		elided("Assets:JPY"),
	))
	require.NoError(t, err)

	jpy := f.reg.Commodity("JPY")
	assert.True(t, tx.Postings[1].Amount.Get(jpy).Equal(dec("17000")))
}

func TestBook_TotalPriceAnnotation(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("-100"),
				Commodity: "CHF",
				Exchange: &model.FragmentExchange{
					Kind: model.ExchangeTotal,
					Rate: model.Rate(dec("17000"), "JPY"),
				},
			},
		},
		explicit("Assets:JPY", "17000", "JPY"),
	))
	require.NoError(t, err)

	require.NotNil(t, tx.Postings[0].Exchange)
	assert.True(t, tx.Postings[0].Exchange.Rate.Equal(dec("170")), "unit rate derived from total")
	assert.True(t, balancingSum(tx).IsZero())
}

func TestBook_ZeroQuantityTotalPriceContributesNothing(t *testing.T) {
	f := newFixture(Config{})

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("0"),
				Commodity: "CHF",
				Exchange: &model.FragmentExchange{
					Kind: model.ExchangeTotal,
					Rate: model.Rate(dec("100"), "JPY"),
				},
			},
		},
		explicit("Expenses:Coffee", "500", "JPY"),
		elided("Assets:Cash"),
	))
	require.NoError(t, err)

	jpy := f.reg.Commodity("JPY")
	assert.True(t, tx.Postings[0].BalancingAmount().IsZero(), "zero lot must not move the imbalance vector")
	assert.True(t, tx.Postings[2].Amount.Get(jpy).Equal(dec("-500")))
}

func TestBook_ImplicitRateConsultsPriceIndex(t *testing.T) {
	f := newFixture(Config{})
	chf := f.reg.Commodity("CHF")
	jpy := f.reg.Commodity("JPY")
	f.prices.Record(date(2024, 1, 1), chf, jpy, dec("170"))

	tx, err := f.engine.Book(frag(date(2024, 1, 15),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("-10"),
				Commodity: "CHF",
				Exchange: &model.FragmentExchange{
					Kind: model.ExchangeUnit,
					Rate: model.ExprPrice{Of: "CHF", In: "JPY"},
				},
			},
		},
		elided("Assets:JPY"),
	))
	require.NoError(t, err)
	assert.True(t, tx.Postings[1].Amount.Get(jpy).Equal(dec("1700")))
}

func TestBook_RateExpressionArithmetic(t *testing.T) {
	f := newFixture(Config{})

	// (100 JPY + 101 JPY) / 2 = 100.5 JPY per CHF.
	rate := model.ExprBinary{
		Op: '/',
		L: model.ExprBinary{
			Op: '+',
			L:  model.ExprAmount{Quantity: dec("100"), Commodity: "JPY"},
			R:  model.ExprAmount{Quantity: dec("101"), Commodity: "JPY"},
		},
		R: model.ExprNumber{Value: dec("2")},
	}

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account: "Expenses:Coffee",
			Amount: &model.FragmentAmount{
				Quantity:  dec("2"),
				Commodity: "CHF",
				Exchange:  &model.FragmentExchange{Kind: model.ExchangeUnit, Rate: rate},
			},
		},
		explicit("Assets:Cash", "-201", "JPY"),
	))
	require.NoError(t, err)
	assert.True(t, balancingSum(tx).IsZero())
}

func TestBook_RateReferencesResolvedPosting(t *testing.T) {
	f := newFixture(Config{})

	// The CHF rate is derived from the cash posting: (0 - posting(0)) / 2
	// = 100.5 JPY per CHF against -201 JPY cash.
	rate := model.ExprBinary{
		Op: '/',
		L: model.ExprBinary{
			Op: '-',
			L:  model.ExprAmount{Quantity: dec("0"), Commodity: "JPY"},
			R:  model.ExprPosting{Index: 0},
		},
		R: model.ExprNumber{Value: dec("2")},
	}

	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Assets:Cash", "-201", "JPY"),
		model.FragmentPosting{
			Account: "Expenses:Coffee",
			Amount: &model.FragmentAmount{
				Quantity:  dec("2"),
				Commodity: "CHF",
				Exchange:  &model.FragmentExchange{Kind: model.ExchangeUnit, Rate: rate},
			},
		},
	))
	require.NoError(t, err)

	require.NotNil(t, tx.Postings[1].Exchange)
	assert.True(t, tx.Postings[1].Exchange.Rate.Equal(dec("100.5")))
	assert.True(t, balancingSum(tx).IsZero())
}

func TestBook_RateReferencingUnresolvedPostingFails(t *testing.T) {
	f := newFixture(Config{})

	// Posting 1 is itself rate-annotated, so posting 0 cannot reference
	// it: rate postings resolve in order.
	_, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("2"),
				Commodity: "CHF",
				Exchange:  &model.FragmentExchange{Kind: model.ExchangeUnit, Rate: model.ExprPosting{Index: 1}},
			},
		},
		withRate("Assets:EUR", "1", "EUR", "0.9", "USD"),
		elided("Assets:Cash"),
	))

	var evalErr *rateexpr.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Reason, "not resolved")
}

func TestBook_EvalFailurePropagates(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("-10"),
				Commodity: "CHF",
				Exchange: &model.FragmentExchange{
					Kind: model.ExchangeUnit,
					Rate: model.ExprPrice{Of: "CHF", In: "JPY"},
				},
			},
		},
		elided("Assets:JPY"),
	))

	var evalErr *rateexpr.EvalError
	require.ErrorAs(t, err, &evalErr)
}

func TestBook_ExchangeSameCommodityRejected(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		withRate("Assets:Cash", "1", "EUR", "5", "EUR"),
		elided("Expenses:Misc"),
	))

	var sameErr *ExchangeSameCommodityError
	require.ErrorAs(t, err, &sameErr)
	assert.Equal(t, "EUR", sameErr.Commodity)
}

func TestBook_HiddenFeeCommission(t *testing.T) {
	f := newFixture(Config{CommissionAccount: "Expenses:Commission"})

	// 100 CHF sold for 10000 JPY while the declared true rate is 100.5:
	// the 50 JPY gap is a hidden commission.
	tx, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Assets:JPY", "10000", "JPY"),
		model.FragmentPosting{
			Account: "Assets:CHF",
			Amount: &model.FragmentAmount{
				Quantity:  dec("-100"),
				Commodity: "CHF",
				Exchange: &model.FragmentExchange{
					Kind:     model.ExchangeTotal,
					Rate:     model.Rate(dec("10000"), "JPY"),
					Expected: model.Rate(dec("100.5"), "JPY"),
				},
			},
		},
	))
	require.NoError(t, err)
	require.Len(t, tx.Postings, 3)

	jpy := f.reg.Commodity("JPY")
	commission := f.reg.Account("Expenses:Commission")
	assert.Equal(t, commission, tx.Postings[2].Account)
	assert.True(t, tx.Postings[2].Amount.Get(jpy).Equal(dec("50")))
	assert.True(t, balancingSum(tx).IsZero())
	assert.True(t, f.running.Amount(commission).Get(jpy).Equal(dec("50")))
}

func TestBook_AssertionChecksAfterOwnPosting(t *testing.T) {
	f := newFixture(Config{})

	// Opening balance.
	_, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Assets:Cash", "1000", "JPY"),
		elided("Equity:Opening"),
	))
	require.NoError(t, err)

	// P1 asserts 500 after its own -500; P2 touches the same account
	// afterwards and must not influence P1's check.
	tx, err := f.engine.Book(frag(date(2024, 1, 2),
		model.FragmentPosting{
			Account: "Assets:Cash",
			Amount:  &model.FragmentAmount{Quantity: dec("-500"), Commodity: "JPY"},
			Assertion: &model.FragmentAssertion{
				Quantity:  dec("500"),
				Commodity: "JPY",
			},
		},
		explicit("Assets:Cash", "-200", "JPY"),
		elided("Expenses:Misc"),
	))
	require.NoError(t, err)
	require.Len(t, tx.Postings, 3)

	jpy := f.reg.Commodity("JPY")
	cash := f.reg.Account("Assets:Cash")
	assert.True(t, f.running.Amount(cash).Get(jpy).Equal(dec("300")))
}

func TestBook_AssertionFailureReportsBothValues(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		model.FragmentPosting{
			Account:   "Assets:Cash",
			Amount:    &model.FragmentAmount{Quantity: dec("100"), Commodity: "JPY"},
			Assertion: &model.FragmentAssertion{Quantity: dec("250"), Commodity: "JPY"},
		},
		elided("Equity:Opening"),
	))

	var assErr *AssertionError
	require.ErrorAs(t, err, &assErr)
	assert.Equal(t, "Assets:Cash", assErr.Account)
	assert.Equal(t, "JPY", assErr.Commodity)
	assert.True(t, assErr.Expected.Equal(dec("250")))
	assert.True(t, assErr.Actual.Equal(dec("100")))
}

func TestBook_AssertionSeesPriorTransactions(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("Assets:Cash", "1000", "JPY"),
		elided("Equity:Opening"),
	))
	require.NoError(t, err)

	_, err = f.engine.Book(frag(date(2024, 1, 2),
		model.FragmentPosting{
			Account:   "Assets:Cash",
			Amount:    &model.FragmentAmount{Quantity: dec("-400"), Commodity: "JPY"},
			Assertion: &model.FragmentAssertion{Quantity: dec("600"), Commodity: "JPY"},
		},
		elided("Expenses:Rent"),
	))
	assert.NoError(t, err)
}

func TestBook_AliasChainResolvesToCanonicalAccount(t *testing.T) {
	f := newFixture(Config{})
	// Flattened 3-hop chain as produced by config validation.
	f.reg.SetAccountAlias("現金", "Assets:Cash")
	f.reg.SetAccountAlias("cash", "Assets:Cash")
	f.reg.SetAccountAlias("c", "Assets:Cash")

	_, err := f.engine.Book(frag(date(2024, 1, 1),
		explicit("c", "100", "JPY"),
		elided("Equity:Opening"),
	))
	require.NoError(t, err)

	_, err = f.engine.Book(frag(date(2024, 1, 2),
		explicit("現金", "50", "JPY"),
		elided("Equity:Opening"),
	))
	require.NoError(t, err)

	jpy := f.reg.Commodity("JPY")
	cash := f.reg.Account("Assets:Cash")
	assert.True(t, f.running.Amount(cash).Get(jpy).Equal(dec("150")),
		"aliased postings land on the canonical account")
}

func TestBookAll_FailFast(t *testing.T) {
	f := newFixture(Config{})

	frags := []*model.Fragment{
		frag(date(2024, 1, 1), explicit("Expenses:Coffee", "500", "JPY"), elided("Assets:Cash")),
		frag(date(2024, 1, 2), elided("Assets:Cash"), elided("Assets:Wallet")),
		frag(date(2024, 1, 3), explicit("Expenses:Coffee", "300", "JPY"), elided("Assets:Cash")),
	}

	txs, err := f.engine.BookAll(frags)
	assert.Nil(t, txs)
	var undErr *UndeduciblePostingAmountError
	assert.ErrorAs(t, err, &undErr)
}
