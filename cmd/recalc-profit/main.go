// Command recalc-profit rewrites stored sale profits from the catalog's
// current cost prices. It is a data-repair job and is never run implicitly.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stationerypos/internal/bootstrap"
	"stationerypos/internal/checkout"
	"stationerypos/internal/config"
	"stationerypos/internal/logger"
	"stationerypos/internal/reporting"
	"stationerypos/internal/service"
)

const serviceName = "recalc-profit"

func main() {
	dryRun := flag.Bool("dry-run", false, "report the sales that would change without writing")
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the run after this long")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logg.WithFields(ctx, map[string]any{
		"driver":  cfg.DB.Driver,
		"dry_run": *dryRun,
	})

	if err := run(ctx, cfg, logg, *dryRun); err != nil {
		logg.Error(ctx, "profit recalculation failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, dryRun bool) error {
	repo, closers, err := bootstrap.OpenStore(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	reportCache, cacheClosers := bootstrap.OpenReportCache(ctx, cfg.Redis, logg)
	closers = append(closers, cacheClosers...)
	defer func() {
		if err := closers.Close(); err != nil {
			logg.Error(ctx, "error closing resources", err)
		}
	}()

	engine := checkout.New(repo, checkout.Options{TaxRate: cfg.Checkout.TaxRate, Logger: logg})
	reporter := reporting.New(repo, repo, reporting.Options{
		WindowDays:        cfg.Report.WindowDays,
		LowStockThreshold: cfg.Report.LowStockThreshold,
	})
	svc := service.New(repo, engine, reporter, service.Options{Cache: reportCache, Logger: logg})

	logg.Info(ctx, "repair.start")
	res, err := svc.RecalculateProfits(ctx, dryRun)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"scanned":          res.Scanned,
		"updated":          res.Updated,
		"missing_products": res.MissingProducts,
	}), "repair.complete")
	return nil
}
