package repair

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationerypos/internal/domain"
	"stationerypos/internal/store/memory"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	store   *memory.Store
	pen     domain.Product
	stale   string
	current string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	pen, err := s.CreateProduct(ctx, domain.Product{Name: "Pen", Category: "writing", CostPrice: d("0.40"), RetailPrice: d("1.00"), Stock: 10})
	require.NoError(t, err)

	// Recorded when the pen cost 0.25.
	stale, err := s.InsertSale(ctx, domain.Sale{
		Items: []domain.SaleLineItem{
			{ProductID: pen.ID, Name: "Pen", Quantity: 4, Price: d("1.00"), Profit: d("3.00")},
			{ProductID: "prd-gone", Name: "Retired Ruler", Quantity: 1, Price: d("2.00"), Profit: d("0.50")},
		},
		TotalAmount:   d("6.00"),
		TotalProfit:   d("3.50"),
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	current, err := s.InsertSale(ctx, domain.Sale{
		Items: []domain.SaleLineItem{
			{ProductID: pen.ID, Name: "Pen", Quantity: 2, Price: d("1.00"), Profit: d("1.20")},
		},
		TotalAmount:   d("2.00"),
		TotalProfit:   d("1.20"),
		PaymentMethod: domain.PaymentCard,
		CreatedAt:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	return fixture{store: s, pen: *pen, stale: stale.ID, current: current.ID}
}

func TestRecalculateProfitsRewritesStaleSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := RecalculateProfits(ctx, f.store, f.store, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 2, Updated: 1, MissingProducts: 1}, res)

	sale, err := f.store.GetSale(ctx, f.stale)
	require.NoError(t, err)
	assert.Equal(t, "2.4", sale.Items[0].Profit.String())
	assert.Equal(t, "0.5", sale.Items[1].Profit.String())
	assert.Equal(t, "2.9", sale.TotalProfit.String())

	untouched, err := f.store.GetSale(ctx, f.current)
	require.NoError(t, err)
	assert.Equal(t, "1.2", untouched.TotalProfit.String())
}

func TestRecalculateProfitsDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := RecalculateProfits(ctx, f.store, f.store, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	sale, err := f.store.GetSale(ctx, f.stale)
	require.NoError(t, err)
	assert.Equal(t, "3.5", sale.TotalProfit.String())
}

func TestRecalculateProfitsIsStableOnSecondRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := RecalculateProfits(ctx, f.store, f.store, Options{})
	require.NoError(t, err)

	res, err := RecalculateProfits(ctx, f.store, f.store, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Scanned)
}
