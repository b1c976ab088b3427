package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stationerypos/internal/bootstrap"
	"stationerypos/internal/checkout"
	"stationerypos/internal/config"
	"stationerypos/internal/httpapi"
	"stationerypos/internal/logger"
	"stationerypos/internal/metrics"
	"stationerypos/internal/reporting"
	"stationerypos/internal/service"
)

const serviceName = "stationery-pos"

func main() {
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := bootstrap.OpenStore(startupCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	reportCache, cacheClosers := bootstrap.OpenReportCache(startupCtx, cfg.Redis, logg)
	closers = append(closers, cacheClosers...)
	defer func() {
		if err := closers.Close(); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := checkout.New(repo, checkout.Options{
		TaxRate:          cfg.Checkout.TaxRate,
		TrustClientPrice: cfg.Checkout.TrustClientPrice,
		MutationTimeout:  cfg.Checkout.MutationTimeout,
		Logger:           logg,
		Metrics:          metrics.NewCheckoutMetrics(registry),
	})
	reporter := reporting.New(repo, repo, reporting.Options{
		WindowDays:        cfg.Report.WindowDays,
		LowStockThreshold: cfg.Report.LowStockThreshold,
	})
	svc := service.New(repo, engine, reporter, service.Options{
		Cache:    reportCache,
		CacheTTL: cfg.Redis.TTL,
		Logger:   logg,
	})
	api := httpapi.New(svc, httpapi.Options{
		Logger:        logg,
		AllowedOrigin: cfg.App.AllowedOrigin,
		Gatherer:      registry,
	})

	server := &http.Server{
		Addr:              cfg.App.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Checkout.MutationTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":           cfg.App.Env,
		"addr":          server.Addr,
		"driver":        cfg.DB.Driver,
		"transactional": engine.Transactional(),
		"tax_rate":      engine.TaxRate().String(),
	})

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "server.listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case s := <-sig:
		logg.Info(logg.WithField(ctx, "signal", s.String()), "server.shutting_down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logg.Info(ctx, "server.stopped")
	return nil
}
