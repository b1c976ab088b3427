// Package reporting derives read-only summaries from the sale ledger and
// the catalog. Days are UTC calendar days.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stationerypos/internal/domain"
)

const (
	DefaultWindowDays        = 7
	DefaultLowStockThreshold = 10
	displayPlaces            = 2
)

type SaleLister interface {
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
}

type StatsReader interface {
	CatalogStats(ctx context.Context, lowStockThreshold int) (domain.CatalogStats, error)
}

type Options struct {
	WindowDays        int
	LowStockThreshold int
	Now               func() time.Time
}

type Reporter struct {
	sales             SaleLister
	catalog           StatsReader
	windowDays        int
	lowStockThreshold int
	now               func() time.Time
}

func New(sales SaleLister, catalog StatsReader, opts Options) *Reporter {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.LowStockThreshold < 0 {
		opts.LowStockThreshold = DefaultLowStockThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reporter{
		sales:             sales,
		catalog:           catalog,
		windowDays:        opts.WindowDays,
		lowStockThreshold: opts.LowStockThreshold,
		now:               opts.Now,
	}
}

func (r *Reporter) WindowDays() int {
	return r.windowDays
}

// Window returns the [from, to) range covering today and the windowDays-1
// days before it.
func (r *Reporter) Window() (time.Time, time.Time) {
	today := domain.DayStart(r.now())
	return today.AddDate(0, 0, -(r.windowDays - 1)), today.AddDate(0, 0, 1)
}

// Daily summarizes the trailing window, one entry per day that had sales.
func (r *Reporter) Daily(ctx context.Context) ([]domain.DailySummary, error) {
	from, to := r.Window()
	sales, err := r.sales.ListSales(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return Summarize(sales), nil
}

func (r *Reporter) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	stats, err := r.catalog.CatalogStats(ctx, r.lowStockThreshold)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("catalog stats: %w", err)
	}

	today := domain.DayStart(r.now())
	sales, err := r.sales.ListSales(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("list sales: %w", err)
	}

	dash := domain.Dashboard{
		TotalProducts: stats.TotalProducts,
		TotalStock:    stats.TotalStock,
		LowStockCount: stats.LowStockCount,
		TodaysSales:   decimal.Zero,
		TotalProfit:   decimal.Zero,
	}
	for _, sale := range sales {
		dash.TodaysSales = dash.TodaysSales.Add(sale.TotalAmount)
		dash.TotalProfit = dash.TotalProfit.Add(sale.TotalProfit)
	}
	return dash, nil
}

// Summarize groups sales by UTC day, sums totalAmount and totalProfit
// exactly, and rounds each sum to two places. Output is ordered by day.
func Summarize(sales []domain.Sale) []domain.DailySummary {
	byDay := make(map[string]*domain.DailySummary)
	for _, sale := range sales {
		day := sale.CreatedAt.UTC().Format(domain.DayLayout)
		sum, ok := byDay[day]
		if !ok {
			sum = &domain.DailySummary{Day: day, TotalSales: decimal.Zero, TotalProfit: decimal.Zero}
			byDay[day] = sum
		}
		sum.TotalSales = sum.TotalSales.Add(sale.TotalAmount)
		sum.TotalProfit = sum.TotalProfit.Add(sale.TotalProfit)
	}

	out := make([]domain.DailySummary, 0, len(byDay))
	for _, sum := range byDay {
		out = append(out, domain.DailySummary{
			Day:         sum.Day,
			TotalSales:  sum.TotalSales.Round(displayPlaces),
			TotalProfit: sum.TotalProfit.Round(displayPlaces),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Day < out[j].Day
	})
	return out
}
