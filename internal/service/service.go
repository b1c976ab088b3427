package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stationerypos/internal/cache"
	"stationerypos/internal/checkout"
	"stationerypos/internal/domain"
	"stationerypos/internal/logger"
	"stationerypos/internal/repair"
	"stationerypos/internal/reporting"
	"stationerypos/internal/store"
)

const (
	pingTimeout     = 2 * time.Second
	defaultCacheTTL = 30 * time.Second
)

// ErrInvalidInput is matched by every *InputError.
var ErrInvalidInput = errors.New("invalid input")

type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

type Options struct {
	Cache    cache.ReportCache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

type Service struct {
	repo     store.Repository
	engine   *checkout.Engine
	reporter *reporting.Reporter
	cache    cache.ReportCache
	cacheTTL time.Duration
	log      *logger.Logger
}

func New(repo store.Repository, engine *checkout.Engine, reporter *reporting.Reporter, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	return &Service{
		repo:     repo,
		engine:   engine,
		reporter: reporter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrNotFound
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)

	if req.Name == "" || req.Category == "" || req.CostPrice == nil || req.RetailPrice == nil || req.Stock == nil {
		return domain.Product{}, invalid("All fields are required")
	}
	if err := nonNegative("costPrice", req.CostPrice); err != nil {
		return domain.Product{}, err
	}
	if err := nonNegative("retailPrice", req.RetailPrice); err != nil {
		return domain.Product{}, err
	}
	if err := nonNegative("wholesalePrice", req.WholesalePrice); err != nil {
		return domain.Product{}, err
	}
	if *req.Stock < 0 {
		return domain.Product{}, invalid("stock must not be negative")
	}

	product := domain.Product{
		Name:           req.Name,
		Category:       req.Category,
		CostPrice:      *req.CostPrice,
		RetailPrice:    *req.RetailPrice,
		WholesalePrice: decimal.Zero,
		Stock:          *req.Stock,
		Unit:           req.Unit,
	}
	if req.WholesalePrice != nil {
		product.WholesalePrice = *req.WholesalePrice
	}
	if product.Unit == "" {
		product.Unit = domain.DefaultUnit
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info(s.log.WithField(ctx, "product_id", created.ID), "product.created")
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, invalid("category must not be empty")
		}
		updated.Category = category
	}
	if req.CostPrice != nil {
		if err := nonNegative("costPrice", req.CostPrice); err != nil {
			return domain.Product{}, err
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.RetailPrice != nil {
		if err := nonNegative("retailPrice", req.RetailPrice); err != nil {
			return domain.Product{}, err
		}
		updated.RetailPrice = *req.RetailPrice
	}
	if req.WholesalePrice != nil {
		if err := nonNegative("wholesalePrice", req.WholesalePrice); err != nil {
			return domain.Product{}, err
		}
		updated.WholesalePrice = *req.WholesalePrice
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, invalid("stock must not be negative")
		}
		updated.Stock = *req.Stock
	}
	if req.Unit != nil {
		updated.Unit = defaultString(*req.Unit, domain.DefaultUnit)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrNotFound
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.Info(s.log.WithField(ctx, "product_id", id), "product.deleted")
	return nil
}

// Checkout maps the request onto cart lines and hands them to the engine.
// An omitted payment method means Cash.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	method := domain.PaymentCash
	if raw := strings.TrimSpace(req.PaymentMethod); raw != "" {
		parsed, ok := domain.ParsePaymentMethod(raw)
		if !ok {
			parsed = domain.PaymentMethod(raw)
		}
		method = parsed
	}

	cart := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		cart = append(cart, domain.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	sale, err := s.engine.Checkout(ctx, cart, method)
	if err != nil {
		return domain.Sale{}, err
	}
	s.invalidateReports(ctx)
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.ErrNotFound
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// Reports returns the trailing-window daily summary, served from the report
// cache while it is fresh.
func (s *Service) Reports(ctx context.Context) ([]domain.DailySummary, error) {
	from, _ := s.reporter.Window()
	key := fmt.Sprintf("daily:%s:%d", from.Format(domain.DayLayout), s.reporter.WindowDays())

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "report.cache_get_failed")
	}
	if ok {
		return cached, nil
	}

	summaries, err := s.reporter.Daily(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, summaries, s.cacheTTL); err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "report.cache_set_failed")
	}
	return summaries, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	return s.reporter.Dashboard(ctx)
}

// ResetSales clears the whole ledger. Stock is not restored.
func (s *Service) ResetSales(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteAllSales(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidateReports(ctx)
	s.log.Warn(s.log.WithField(ctx, "deleted_count", deleted), "sales.reset")
	return deleted, nil
}

func (s *Service) RecalculateProfits(ctx context.Context, dryRun bool) (repair.Result, error) {
	res, err := repair.RecalculateProfits(ctx, s.repo, s.repo, repair.Options{DryRun: dryRun, Logger: s.log})
	if err != nil {
		return res, err
	}
	if !dryRun && res.Updated > 0 {
		s.invalidateReports(ctx)
	}
	return res, nil
}

func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.repo.Ping(ctx)
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "report.cache_invalidate_failed")
	}
}

func nonNegative(field string, value *decimal.Decimal) error {
	if value != nil && value.IsNegative() {
		return invalid("%s must not be negative", field)
	}
	return nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
