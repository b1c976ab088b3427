package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"stationerypos/internal/domain"
	"stationerypos/internal/store"
	"stationerypos/internal/xid"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
	q  querier
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one READ COMMITTED transaction. The conditional
// UPDATE in DecrementStock re-checks its predicate after waiting on a row
// lock, so concurrent checkouts cannot oversell at this level. A transaction
// aborted by a deadlock or serialization failure is retried once, so fn must
// be safe to run again.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.TxStore) error) error {
	err := s.inTx(ctx, fn)
	if isRetryableAbort(err) {
		err = s.inTx(ctx, fn)
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx store.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &Store{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

const productColumns = `id, name, category, cost_price, retail_price, wholesale_price, stock, unit, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.CostPrice, &p.RetailPrice, &p.WholesalePrice, &p.Stock, &p.Unit, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Unit == "" {
		product.Unit = domain.DefaultUnit
	}

	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		INSERT INTO products (id, name, category, cost_price, retail_price, wholesale_price, stock, unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.CostPrice, product.RetailPrice, product.WholesalePrice, product.Stock, product.Unit))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, cost_price = $4, retail_price = $5, wholesale_price = $6,
		    stock = $7, unit = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.CostPrice, product.RetailPrice, product.WholesalePrice, product.Stock, product.Unit))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, store.ErrNotFound
	case isUniqueViolation(err):
		return nil, store.ErrDuplicateName
	case err != nil:
		return nil, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, id string, qty int) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, id, qty))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var available int
	if err := s.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return nil, &store.StockShortageError{ProductID: id, Requested: qty, Available: available}
}

func (s *Store) RestoreStock(ctx context.Context, id string, qty int) error {
	res, err := s.q.ExecContext(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CatalogStats(ctx context.Context, lowStockThreshold int) (domain.CatalogStats, error) {
	var stats domain.CatalogStats
	err := s.q.QueryRowContext(ctx, `
		SELECT count(*), COALESCE(sum(stock), 0), count(*) FILTER (WHERE stock <= $1)
		FROM products
	`, lowStockThreshold).Scan(&stats.TotalProducts, &stats.TotalStock, &stats.LowStockCount)
	return stats, err
}

const saleColumns = `id, items, subtotal, tax, discount, total_amount, total_profit, payment_method, created_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale  domain.Sale
		items []byte
		pm    string
	)
	if err := row.Scan(&sale.ID, &items, &sale.Subtotal, &sale.Tax, &sale.Discount, &sale.TotalAmount, &sale.TotalProfit, &pm, &sale.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return nil, fmt.Errorf("decode sale %s items: %w", sale.ID, err)
	}
	sale.PaymentMethod = domain.PaymentMethod(pm)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO sales (id, items, subtotal, tax, discount, total_amount, total_profit, payment_method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, string(items), sale.Subtotal, sale.Tax, sale.Discount, sale.TotalAmount, sale.TotalProfit, string(sale.PaymentMethod), sale.CreatedAt); err != nil {
		return nil, err
	}

	saved := sale.Clone()
	return &saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sale, err
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

// AllSales pages through the ledger by (created_at, id) so fn may write
// back to the store without holding a cursor open.
func (s *Store) AllSales(ctx context.Context, fn func(domain.Sale) error) error {
	const pageSize = 200
	var (
		afterAt time.Time
		afterID string
	)
	for {
		rows, err := s.q.QueryContext(ctx, `
			SELECT `+saleColumns+`
			FROM sales
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3
		`, afterAt, afterID, pageSize)
		if err != nil {
			return err
		}

		page := make([]domain.Sale, 0, pageSize)
		for rows.Next() {
			sale, err := scanSale(rows)
			if err != nil {
				rows.Close()
				return err
			}
			page = append(page, *sale)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, sale := range page {
			if err := fn(sale); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		last := page[len(page)-1]
		afterAt, afterID = last.CreatedAt, last.ID
	}
}

func (s *Store) UpdateSaleProfit(ctx context.Context, id string, items []domain.SaleLineItem, totalProfit decimal.Decimal) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE sales SET items = $2, total_profit = $3 WHERE id = $1`, id, string(payload), totalProfit)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllSales(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sales`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isRetryableAbort(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
