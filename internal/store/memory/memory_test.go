package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationerypos/internal/domain"
	"stationerypos/internal/store"
)

func TestDecrementStockIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreateProduct(ctx, domain.Product{Name: "Ruler 30cm", Category: "office", CostPrice: dec("0.5"), RetailPrice: dec("1"), Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultUnit, p.Unit)

	updated, err := s.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stock)

	_, err = s.DecrementStock(ctx, p.ID, 2)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	var shortage *store.StockShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, 1, shortage.Available)
	assert.Equal(t, 2, shortage.Requested)

	_, err = s.DecrementStock(ctx, "missing", 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.RestoreStock(ctx, p.ID, 2))
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, err := s.CreateProduct(ctx, domain.Product{Name: "Sticky Notes", Category: "paper", CostPrice: dec("1"), RetailPrice: dec("2"), Stock: 7})
	require.NoError(t, err)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.DecrementStock(ctx, p.ID, 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 7, ok.Load())
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestProductNamesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, err := s.CreateProduct(ctx, domain.Product{Name: "Compass", Category: "math"})
	require.NoError(t, err)
	second, err := s.CreateProduct(ctx, domain.Product{Name: "Protractor", Category: "math"})
	require.NoError(t, err)

	_, err = s.CreateProduct(ctx, domain.Product{Name: "compass", Category: "math"})
	require.ErrorIs(t, err, store.ErrDuplicateName)

	second.Name = first.Name
	_, err = s.UpdateProduct(ctx, *second)
	require.ErrorIs(t, err, store.ErrDuplicateName)

	require.NoError(t, s.DeleteProduct(ctx, first.ID))
	require.ErrorIs(t, s.DeleteProduct(ctx, first.ID), store.ErrNotFound)
}

func TestLedgerRangeAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{day.Add(2 * time.Hour), day.Add(26 * time.Hour), day.Add(-time.Minute)} {
		_, err := s.InsertSale(ctx, domain.Sale{TotalAmount: dec("10"), CreatedAt: at, Items: []domain.SaleLineItem{{ProductID: "p", Quantity: i + 1}}})
		require.NoError(t, err)
	}

	sales, err := s.ListSales(ctx, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.True(t, sales[0].CreatedAt.Before(sales[1].CreatedAt))

	sales[0].Items[0].Quantity = 99
	again, err := s.GetSale(ctx, sales[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, 99, again.Items[0].Quantity)

	n, err := s.DeleteAllSales(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = s.GetSale(ctx, sales[0].ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalogStats(t *testing.T) {
	stats, err := NewSeeded().CatalogStats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.TotalProducts)
	assert.Equal(t, 240+300+60+25+8+12+40+5, stats.TotalStock)
	assert.Equal(t, 2, stats.LowStockCount)
}
