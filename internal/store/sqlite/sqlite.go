package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stationerypos/internal/domain"
	"stationerypos/internal/store"
	"stationerypos/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL COLLATE NOCASE UNIQUE,
  category TEXT NOT NULL,
  cost_price TEXT NOT NULL,
  retail_price TEXT NOT NULL,
  wholesale_price TEXT NOT NULL DEFAULT '0',
  stock INTEGER NOT NULL CHECK (stock >= 0),
  unit TEXT NOT NULL DEFAULT 'pcs',
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS sales (
  id TEXT PRIMARY KEY,
  items TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL,
  discount TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  total_profit TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);`

// Amounts are kept in TEXT columns so sqlite's numeric affinity never
// rounds them through float64.
type productRow struct {
	ID             string          `gorm:"primaryKey"`
	Name           string          `gorm:"column:name"`
	Category       string          `gorm:"column:category"`
	CostPrice      decimal.Decimal `gorm:"column:cost_price"`
	RetailPrice    decimal.Decimal `gorm:"column:retail_price"`
	WholesalePrice decimal.Decimal `gorm:"column:wholesale_price"`
	Stock          int             `gorm:"column:stock"`
	Unit           string          `gorm:"column:unit"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (productRow) TableName() string { return "products" }

type saleRow struct {
	ID            string                `gorm:"primaryKey"`
	Items         []domain.SaleLineItem `gorm:"column:items;serializer:json"`
	Subtotal      decimal.Decimal       `gorm:"column:subtotal"`
	Tax           decimal.Decimal       `gorm:"column:tax"`
	Discount      decimal.Decimal       `gorm:"column:discount"`
	TotalAmount   decimal.Decimal       `gorm:"column:total_amount"`
	TotalProfit   decimal.Decimal       `gorm:"column:total_profit"`
	PaymentMethod string                `gorm:"column:payment_method"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime:false"`
}

func (saleRow) TableName() string { return "sales" }

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// Open connects to dsn, e.g. "file:stationery.db?_busy_timeout=5000" or
// "file:test?mode=memory&cache=shared", and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	// sqlite serializes writers; one connection keeps transactions from
	// tripping over SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := conn.WithContext(ctx).Exec(schema).Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DSNForPath builds a file DSN with a busy timeout.
func DSNForPath(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.TxStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Store{db: tx, now: s.now})
	})
}

func toProduct(row productRow) domain.Product {
	return domain.Product{
		ID:             row.ID,
		Name:           row.Name,
		Category:       row.Category,
		CostPrice:      row.CostPrice,
		RetailPrice:    row.RetailPrice,
		WholesalePrice: row.WholesalePrice,
		Stock:          row.Stock,
		Unit:           row.Unit,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func fromProduct(p domain.Product) productRow {
	return productRow{
		ID:             p.ID,
		Name:           p.Name,
		Category:       p.Category,
		CostPrice:      p.CostPrice,
		RetailPrice:    p.RetailPrice,
		WholesalePrice: p.WholesalePrice,
		Stock:          p.Stock,
		Unit:           p.Unit,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, toProduct(row))
	}
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := toProduct(row)
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Unit == "" {
		product.Unit = domain.DefaultUnit
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	row := fromProduct(product)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}
	created := toProduct(row)
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = s.now()
	row := fromProduct(product)
	res := s.db.WithContext(ctx).
		Model(&productRow{}).
		Where("id = ?", product.ID).
		Select("name", "category", "cost_price", "retail_price", "wholesale_price", "stock", "unit", "updated_at").
		Updates(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, store.ErrDuplicateName
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&productRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, id string, qty int) (*domain.Product, error) {
	res := s.db.WithContext(ctx).
		Model(&productRow{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}

	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, &store.StockShortageError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	return p, nil
}

func (s *Store) RestoreStock(ctx context.Context, id string, qty int) error {
	res := s.db.WithContext(ctx).
		Model(&productRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CatalogStats(ctx context.Context, lowStockThreshold int) (domain.CatalogStats, error) {
	var stats domain.CatalogStats
	err := s.db.WithContext(ctx).Raw(`
		SELECT count(*), COALESCE(SUM(stock), 0), COALESCE(SUM(CASE WHEN stock <= ? THEN 1 ELSE 0 END), 0)
		FROM products`, lowStockThreshold).
		Row().
		Scan(&stats.TotalProducts, &stats.TotalStock, &stats.LowStockCount)
	return stats, err
}

func toSale(row saleRow) domain.Sale {
	return domain.Sale{
		ID:            row.ID,
		Items:         row.Items,
		Subtotal:      row.Subtotal,
		Tax:           row.Tax,
		Discount:      row.Discount,
		TotalAmount:   row.TotalAmount,
		TotalProfit:   row.TotalProfit,
		PaymentMethod: domain.PaymentMethod(row.PaymentMethod),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	row := saleRow{
		ID:            sale.ID,
		Items:         sale.Items,
		Subtotal:      sale.Subtotal,
		Tax:           sale.Tax,
		Discount:      sale.Discount,
		TotalAmount:   sale.TotalAmount,
		TotalProfit:   sale.TotalProfit,
		PaymentMethod: string(sale.PaymentMethod),
		CreatedAt:     sale.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	saved := sale.Clone()
	return &saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var row saleRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sale := toSale(row)
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	var rows []saleRow
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSale(row))
	}
	return out, nil
}

func (s *Store) AllSales(ctx context.Context, fn func(domain.Sale) error) error {
	var rows []saleRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		if err := fn(toSale(row)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateSaleProfit(ctx context.Context, id string, items []domain.SaleLineItem, totalProfit decimal.Decimal) error {
	res := s.db.WithContext(ctx).
		Model(&saleRow{}).
		Where("id = ?", id).
		Select("items", "total_profit").
		Updates(&saleRow{Items: items, TotalProfit: totalProfit})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllSales(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&saleRow{})
	return res.RowsAffected, res.Error
}
