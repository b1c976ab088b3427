package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationerypos/internal/checkout"
	"stationerypos/internal/domain"
	"stationerypos/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("STATIONERY_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STATIONERY_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, Options{MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestDecrementStockAndRollback(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	p, err := s.CreateProduct(ctx, domain.Product{
		Name:        fmt.Sprintf("IT Marker %d", stamp),
		Category:    "writing",
		CostPrice:   decimal.RequireFromString("1.125"),
		RetailPrice: decimal.RequireFromString("2.375"),
		Stock:       3,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DeleteProduct(ctx, p.ID)
	})
	assert.True(t, p.CostPrice.Equal(decimal.RequireFromString("1.125")))

	_, err = s.CreateProduct(ctx, domain.Product{Name: p.Name, Category: "writing", Stock: 1})
	require.ErrorIs(t, err, store.ErrDuplicateName)

	var saleID string
	boom := errors.New("boom")
	err = s.InTx(ctx, func(ctx context.Context, tx store.TxStore) error {
		if _, err := tx.DecrementStock(ctx, p.ID, 2); err != nil {
			return err
		}
		sale, err := tx.InsertSale(ctx, domain.Sale{
			Items:         []domain.SaleLineItem{{ProductID: p.ID, Name: p.Name, Quantity: 2, Price: p.RetailPrice}},
			PaymentMethod: domain.PaymentCash,
		})
		if err != nil {
			return err
		}
		saleID = sale.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	_, err = s.GetSale(ctx, saleID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.DecrementStock(ctx, p.ID, 4)
	var shortage *store.StockShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, 3, shortage.Available)
}

func TestOppositeOrderCartsBothCommit(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	var ids []string
	for _, name := range []string{"IT Binder", "IT Stapler"} {
		p, err := s.CreateProduct(ctx, domain.Product{
			Name:        fmt.Sprintf("%s %d", name, stamp),
			Category:    "office",
			CostPrice:   decimal.RequireFromString("1"),
			RetailPrice: decimal.RequireFromString("2"),
			Stock:       200,
		})
		require.NoError(t, err)
		ids = append(ids, p.ID)
		t.Cleanup(func() {
			_ = s.DeleteProduct(ctx, p.ID)
		})
	}

	engine := checkout.New(s, checkout.Options{TaxRate: checkout.DefaultTaxRate})
	forward := []domain.CartLine{{ProductID: ids[0], Quantity: 1}, {ProductID: ids[1], Quantity: 1}}
	backward := []domain.CartLine{{ProductID: ids[1], Quantity: 1}, {ProductID: ids[0], Quantity: 1}}

	const rounds = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
		saleIDs  []string
	)
	for i := 0; i < rounds; i++ {
		for _, cart := range [][]domain.CartLine{forward, backward} {
			wg.Add(1)
			go func(cart []domain.CartLine) {
				defer wg.Done()
				sale, err := engine.Checkout(ctx, cart, domain.PaymentCash)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				saleIDs = append(saleIDs, sale.ID)
			}(cart)
		}
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Len(t, saleIDs, 2*rounds)
	for _, id := range ids {
		got, err := s.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 200-2*rounds, got.Stock)
	}
}
