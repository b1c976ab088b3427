package cache

import (
	"context"
	"time"

	"stationerypos/internal/domain"
)

// ReportKeyPrefix namespaces every report entry so Invalidate can drop them
// together.
const ReportKeyPrefix = "stationery:report:"

type ReportCache interface {
	Get(ctx context.Context, key string) ([]domain.DailySummary, bool, error)
	Set(ctx context.Context, key string, value []domain.DailySummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
