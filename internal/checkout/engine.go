// Package checkout turns a cart into a persisted sale. Stock is only ever
// changed through the store's conditional decrement, and a checkout either
// applies every decrement plus the sale insert or leaves no trace.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"stationerypos/internal/domain"
	"stationerypos/internal/logger"
	"stationerypos/internal/metrics"
	"stationerypos/internal/store"
)

// DefaultTaxRate is 10%.
var DefaultTaxRate = decimal.New(1, -1)

const defaultMutationTimeout = 10 * time.Second

// MaxLineQuantity bounds a single cart line to what the stock column holds.
const MaxLineQuantity = math.MaxInt32

type Options struct {
	// TaxRate is applied to the subtotal as is; the zero value means no tax.
	TaxRate decimal.Decimal
	// TrustClientPrice prices lines with the caller's quoted price instead
	// of the catalog's retail price.
	TrustClientPrice bool
	MutationTimeout  time.Duration
	Logger           *logger.Logger
	Metrics          *metrics.CheckoutMetrics
	Now              func() time.Time
}

type Engine struct {
	store            store.CheckoutStore
	tx               store.Transactor
	taxRate          decimal.Decimal
	trustClientPrice bool
	mutationTimeout  time.Duration
	log              *logger.Logger
	metrics          *metrics.CheckoutMetrics
	now              func() time.Time
}

// New builds an engine over s. When s also implements store.Transactor the
// apply phase runs inside one storage transaction; otherwise applied
// decrements are undone with RestoreStock on failure.
func New(s store.CheckoutStore, opts Options) *Engine {
	e := &Engine{
		store:            s,
		taxRate:          opts.TaxRate,
		trustClientPrice: opts.TrustClientPrice,
		mutationTimeout:  opts.MutationTimeout,
		log:              opts.Logger,
		metrics:          opts.Metrics,
		now:              opts.Now,
	}
	if tx, ok := s.(store.Transactor); ok {
		e.tx = tx
	}
	if e.mutationTimeout <= 0 {
		e.mutationTimeout = defaultMutationTimeout
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

func (e *Engine) TaxRate() decimal.Decimal {
	return e.taxRate
}

func (e *Engine) Transactional() bool {
	return e.tx != nil
}

func (e *Engine) Checkout(ctx context.Context, cart []domain.CartLine, method domain.PaymentMethod) (*domain.Sale, error) {
	startedAt := time.Now()
	sale, err := e.checkout(ctx, cart, method)
	e.metrics.Observe(outcomeOf(err), time.Since(startedAt))
	if err != nil {
		return nil, err
	}

	units := 0
	for _, item := range sale.Items {
		units += item.Quantity
	}
	e.metrics.AddUnitsSold(units)
	e.log.Info(e.log.WithFields(ctx, map[string]any{
		"sale_id": sale.ID,
		"lines":   len(sale.Items),
		"total":   sale.TotalAmount.String(),
	}), "checkout.complete")
	return sale, nil
}

func (e *Engine) checkout(ctx context.Context, cart []domain.CartLine, method domain.PaymentMethod) (*domain.Sale, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	if err := validateCart(cart, method); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checkout aborted: %w", err)
	}

	snapshot, err := e.precheck(ctx, cart)
	if err != nil {
		return nil, err
	}

	// Last point where the caller's deadline is honored. Past here the
	// apply phase runs to completion or rolls back on its own clock.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checkout aborted: %w", err)
	}
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.mutationTimeout)
	defer cancel()

	if e.tx != nil {
		return e.applyInTx(applyCtx, cart, method, snapshot)
	}
	return e.applyWithCompensation(applyCtx, cart, method, snapshot)
}

func validateCart(cart []domain.CartLine, method domain.PaymentMethod) error {
	if !method.IsValid() {
		return &ValidationError{Field: "paymentMethod", Reason: "must be Cash or Card"}
	}
	for i, line := range cart {
		if strings.TrimSpace(line.ProductID) == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].productId", i), Reason: "is required"}
		}
		if line.Quantity < 1 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be a positive integer"}
		}
		if line.Quantity > MaxLineQuantity {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: fmt.Sprintf("must be at most %d", MaxLineQuantity)}
		}
		if line.UnitPrice.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Reason: "must not be negative"}
		}
	}
	return nil
}

// precheck resolves every line in cart order and checks the cumulative
// quantity per product against current stock. Nothing is written.
func (e *Engine) precheck(ctx context.Context, cart []domain.CartLine) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(cart))
	requested := make(map[string]int, len(cart))

	for _, line := range cart {
		p, ok := products[line.ProductID]
		if !ok {
			found, err := e.store.GetProduct(ctx, line.ProductID)
			if err != nil {
				switch {
				case errors.Is(err, store.ErrNotFound):
					return nil, &ProductNotFoundError{ProductID: line.ProductID}
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					return nil, fmt.Errorf("checkout aborted: %w", err)
				}
				return nil, &PersistenceError{Op: "find product", Err: err}
			}
			p = *found
			products[line.ProductID] = p
		}

		requested[line.ProductID] += line.Quantity
		if p.Stock < requested[line.ProductID] {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   requested[line.ProductID],
				Available:   p.Stock,
			}
		}
	}
	return products, nil
}

func (e *Engine) applyInTx(ctx context.Context, cart []domain.CartLine, method domain.PaymentMethod, snapshot map[string]domain.Product) (*domain.Sale, error) {
	var sale *domain.Sale
	err := e.tx.InTx(ctx, func(ctx context.Context, tx store.TxStore) error {
		var err error
		sale, err = e.apply(ctx, tx, cart, method, snapshot, nil)
		return err
	})
	if err != nil {
		var persist *PersistenceError
		if errors.As(err, &persist) {
			e.log.Error(e.log.WithField(ctx, "op", persist.Op), "checkout.persistence_failed", err)
			return nil, err
		}
		if isEngineError(err) {
			return nil, err
		}
		e.log.Error(ctx, "checkout.commit_failed", err)
		return nil, &PersistenceError{Op: "commit", Err: err}
	}
	return sale, nil
}

type appliedLine struct {
	productID string
	quantity  int
}

func (e *Engine) applyWithCompensation(ctx context.Context, cart []domain.CartLine, method domain.PaymentMethod, snapshot map[string]domain.Product) (*domain.Sale, error) {
	applied := make([]appliedLine, 0, len(cart))
	sale, err := e.apply(ctx, e.store, cart, method, snapshot, &applied)
	if err == nil {
		return sale, nil
	}

	// The apply clock may be what failed, so restores get their own.
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.mutationTimeout)
	defer cancel()
	if compErr := e.compensate(restoreCtx, applied); compErr != nil {
		e.metrics.IncCompensationFailure()
		e.log.Error(e.log.WithField(ctx, "lines_applied", len(applied)), "checkout.compensation_failed", compErr)
		return nil, &PersistenceError{Op: "compensate", Err: multierr.Combine(err, compErr)}
	}

	var persist *PersistenceError
	if errors.As(err, &persist) {
		e.log.Error(e.log.WithField(ctx, "lines_restored", len(applied)), "checkout.persistence_failed", err)
	}
	return nil, err
}

// compensate restores applied decrements in reverse order and keeps going
// past individual failures so as much stock as possible is returned.
func (e *Engine) compensate(ctx context.Context, applied []appliedLine) error {
	var errs error
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		if err := e.store.RestoreStock(ctx, line.productID, line.quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %d of %s: %w", line.quantity, line.productID, err))
		}
	}
	return errs
}

// apply decrements stock once per product in product id order, so
// concurrent transactions always lock rows in the same order, then prices
// the lines in cart order and inserts the sale. When applied is non-nil
// every successful decrement is recorded there for compensation.
func (e *Engine) apply(ctx context.Context, s store.TxStore, cart []domain.CartLine, method domain.PaymentMethod, snapshot map[string]domain.Product, applied *[]appliedLine) (*domain.Sale, error) {
	totals, order := groupByProduct(cart)
	current := make(map[string]*domain.Product, len(order))
	for _, id := range order {
		p, err := s.DecrementStock(ctx, id, totals[id])
		if err != nil {
			return nil, e.translateDecrementError(id, snapshot, err)
		}
		if applied != nil {
			*applied = append(*applied, appliedLine{productID: id, quantity: totals[id]})
		}
		current[id] = p
	}

	items := make([]domain.SaleLineItem, 0, len(cart))
	subtotal := decimal.Zero
	totalProfit := decimal.Zero
	for _, line := range cart {
		p := current[line.ProductID]
		price := p.RetailPrice
		if e.trustClientPrice {
			price = line.UnitPrice
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		profit := price.Sub(p.CostPrice).Mul(qty)

		items = append(items, domain.SaleLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			Price:     price,
			Profit:    profit,
		})
		subtotal = subtotal.Add(price.Mul(qty))
		totalProfit = totalProfit.Add(profit)
	}

	tax := subtotal.Mul(e.taxRate)
	discount := decimal.Zero
	sale := domain.Sale{
		Items:         items,
		Subtotal:      subtotal,
		Tax:           tax,
		Discount:      discount,
		TotalAmount:   subtotal.Add(tax).Sub(discount),
		TotalProfit:   totalProfit,
		PaymentMethod: method,
		CreatedAt:     e.now(),
	}

	saved, err := s.InsertSale(ctx, sale)
	if err != nil {
		return nil, &PersistenceError{Op: "insert sale", Err: err}
	}
	return saved, nil
}

// groupByProduct sums quantities per product and returns the ids sorted.
func groupByProduct(cart []domain.CartLine) (map[string]int, []string) {
	totals := make(map[string]int, len(cart))
	order := make([]string, 0, len(cart))
	for _, line := range cart {
		if _, seen := totals[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}
	sort.Strings(order)
	return totals, order
}

func (e *Engine) translateDecrementError(productID string, snapshot map[string]domain.Product, err error) error {
	var shortage *store.StockShortageError
	switch {
	case errors.As(err, &shortage):
		return &InsufficientStockError{
			ProductID:   productID,
			ProductName: snapshot[productID].Name,
			Requested:   shortage.Requested,
			Available:   shortage.Available,
		}
	case errors.Is(err, store.ErrNotFound):
		return &ProductNotFoundError{ProductID: productID}
	default:
		return &PersistenceError{Op: "decrement stock", Err: err}
	}
}

func outcomeOf(err error) string {
	var (
		persist    *PersistenceError
		validation *ValidationError
		notFound   *ProductNotFoundError
		shortage   *InsufficientStockError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrEmptyCart):
		return metrics.OutcomeEmptyCart
	case errors.As(err, &persist):
		return metrics.OutcomePersistence
	case errors.As(err, &validation):
		return metrics.OutcomeValidation
	case errors.As(err, &notFound):
		return metrics.OutcomeNotFound
	case errors.As(err, &shortage):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomePersistence
	}
}
