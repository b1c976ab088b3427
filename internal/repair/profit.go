// Package repair holds explicitly invoked data-repair jobs. Nothing here runs
// on the checkout path; sales are only rewritten when an operator asks.
package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"stationerypos/internal/domain"
	"stationerypos/internal/logger"
	"stationerypos/internal/store"
)

type ProfitLedger interface {
	AllSales(ctx context.Context, fn func(domain.Sale) error) error
	UpdateSaleProfit(ctx context.Context, id string, items []domain.SaleLineItem, totalProfit decimal.Decimal) error
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Options struct {
	DryRun bool
	Logger *logger.Logger
}

type Result struct {
	Scanned int
	Updated int
	// MissingProducts counts line items whose product no longer exists.
	// Those lines keep their stored profit.
	MissingProducts int
}

// RecalculateProfits recomputes each line's profit as
// (line price - current cost price) * quantity and rewrites sales whose
// stored profit differs. Products are looked up once per run.
func RecalculateProfits(ctx context.Context, ledger ProfitLedger, catalog ProductLookup, opts Options) (Result, error) {
	var (
		res   Result
		costs = make(map[string]*decimal.Decimal)
		log   = opts.Logger
	)

	costOf := func(ctx context.Context, productID string) (*decimal.Decimal, error) {
		if cost, ok := costs[productID]; ok {
			return cost, nil
		}
		p, err := catalog.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			costs[productID] = nil
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", productID, err)
		}
		cost := p.CostPrice
		costs[productID] = &cost
		return &cost, nil
	}

	err := ledger.AllSales(ctx, func(sale domain.Sale) error {
		res.Scanned++

		items := make([]domain.SaleLineItem, len(sale.Items))
		total := decimal.Zero
		changed := false
		for i, item := range sale.Items {
			cost, err := costOf(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if cost == nil {
				res.MissingProducts++
				log.Warn(log.WithFields(ctx, map[string]any{
					"sale_id":    sale.ID,
					"product_id": item.ProductID,
				}), "repair.product_missing")
			} else {
				profit := item.Price.Sub(*cost).Mul(decimal.NewFromInt(int64(item.Quantity)))
				if !profit.Equal(item.Profit) {
					changed = true
				}
				item.Profit = profit
			}
			items[i] = item
			total = total.Add(item.Profit)
		}
		if !total.Equal(sale.TotalProfit) {
			changed = true
		}
		if !changed {
			return nil
		}

		res.Updated++
		log.Info(log.WithFields(ctx, map[string]any{
			"sale_id":    sale.ID,
			"old_profit": sale.TotalProfit.String(),
			"new_profit": total.String(),
			"dry_run":    opts.DryRun,
		}), "repair.sale_profit")
		if opts.DryRun {
			return nil
		}
		if err := ledger.UpdateSaleProfit(ctx, sale.ID, items, total); err != nil {
			return fmt.Errorf("update sale %s: %w", sale.ID, err)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, nil
}
