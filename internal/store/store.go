package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stationerypos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateName     = errors.New("duplicate product name")
)

// StockShortageError is returned by a conditional decrement that found too
// little stock. It matches ErrInsufficientStock.
type StockShortageError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StockKeeper is the catalog surface the checkout engine needs. DecrementStock
// must be a single compare-and-decrement: it only applies when the current
// stock covers qty and returns the product as it is after the decrement.
type StockKeeper interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) (*domain.Product, error)
}

type SaleWriter interface {
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
}

// CheckoutStore is used by stores without multi-record transactions. The
// engine undoes applied decrements through RestoreStock.
type CheckoutStore interface {
	StockKeeper
	SaleWriter
	RestoreStock(ctx context.Context, id string, qty int) error
}

type TxStore interface {
	StockKeeper
	SaleWriter
}

// Transactor is implemented by stores that can run the whole checkout in
// one storage transaction. fn's writes are committed only if it returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

type Catalog interface {
	StockKeeper
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	RestoreStock(ctx context.Context, id string, qty int) error
	CatalogStats(ctx context.Context, lowStockThreshold int) (domain.CatalogStats, error)
}

type Ledger interface {
	SaleWriter
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	// ListSales returns sales created in [from, to) ordered by creation time.
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	// AllSales walks the whole ledger in creation order.
	AllSales(ctx context.Context, fn func(domain.Sale) error) error
	UpdateSaleProfit(ctx context.Context, id string, items []domain.SaleLineItem, totalProfit decimal.Decimal) error
	DeleteAllSales(ctx context.Context) (int64, error)
}

type Repository interface {
	Catalog
	Ledger
	Ping(ctx context.Context) error
}
