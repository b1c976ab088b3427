package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stationerypos/internal/domain"
	"stationerypos/internal/store"
	"stationerypos/internal/xid"
)

// Store keeps the catalog and ledger in process. Every method takes the
// single mutex, so DecrementStock is a true compare-and-decrement. It does
// not implement store.Transactor; checkout falls back to compensation.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	sales    map[string]domain.Sale
	now      func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		sales:    make(map[string]domain.Sale),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func NewSeeded() *Store {
	s := New()
	seed := []domain.Product{
		{Name: "Ballpoint Pen Blue", Category: "writing", CostPrice: dec("0.35"), RetailPrice: dec("0.75"), WholesalePrice: dec("0.55"), Stock: 240},
		{Name: "Pencil HB", Category: "writing", CostPrice: dec("0.15"), RetailPrice: dec("0.40"), WholesalePrice: dec("0.30"), Stock: 300},
		{Name: "A4 Notebook 80 Sheets", Category: "paper", CostPrice: dec("1.20"), RetailPrice: dec("2.50"), WholesalePrice: dec("2.00"), Stock: 60},
		{Name: "Copy Paper A4 Ream", Category: "paper", CostPrice: dec("3.80"), RetailPrice: dec("5.90"), Stock: 25, Unit: "ream"},
		{Name: "Eraser White", Category: "writing", CostPrice: dec("0.10"), RetailPrice: dec("0.30"), Stock: 8},
		{Name: "Stapler Mini", Category: "office", CostPrice: dec("1.75"), RetailPrice: dec("3.25"), Stock: 12},
		{Name: "Glue Stick 20g", Category: "office", CostPrice: dec("0.45"), RetailPrice: dec("0.95"), Stock: 40},
		{Name: "Highlighter Set", Category: "writing", CostPrice: dec("1.90"), RetailPrice: dec("3.60"), Stock: 5, Unit: "set"},
	}
	for _, p := range seed {
		_, _ = s.CreateProduct(context.Background(), p)
	}
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(product.Name, "") {
		return nil, store.ErrDuplicateName
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Unit == "" {
		product.Unit = domain.DefaultUnit
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.nameTakenLocked(product.Name, product.ID) {
		return nil, store.ErrDuplicateName
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) nameTakenLocked(name string, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) DecrementStock(_ context.Context, id string, qty int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Stock < qty {
		return nil, &store.StockShortageError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	p.UpdatedAt = s.now()
	s.products[id] = p

	updated := p
	return &updated, nil
}

func (s *Store) RestoreStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

func (s *Store) CatalogStats(_ context.Context, lowStockThreshold int) (domain.CatalogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.CatalogStats{TotalProducts: len(s.products)}
	for _, p := range s.products {
		stats.TotalStock += p.Stock
		if p.Stock <= lowStockThreshold {
			stats.LowStockCount++
		}
	}
	return stats, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	s.sales[sale.ID] = sale.Clone()

	saved := sale.Clone()
	return &saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := sale.Clone()
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, sale.Clone())
	}
	sortSales(out)
	return out, nil
}

func (s *Store) AllSales(_ context.Context, fn func(domain.Sale) error) error {
	s.mu.RLock()
	all := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		all = append(all, sale.Clone())
	}
	s.mu.RUnlock()

	sortSales(all)
	for _, sale := range all {
		if err := fn(sale); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateSaleProfit(_ context.Context, id string, items []domain.SaleLineItem, totalProfit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	sale.Items = append([]domain.SaleLineItem(nil), items...)
	sale.TotalProfit = totalProfit
	s.sales[id] = sale
	return nil
}

func (s *Store) DeleteAllSales(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.sales))
	s.sales = make(map[string]domain.Sale)
	return n, nil
}

func sortSales(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
