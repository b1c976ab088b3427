package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationerypos/internal/domain"
	"stationerypos/internal/xid"
)

func TestNoopReportCacheAlwaysMisses(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "daily", []domain.DailySummary{{Day: "2024-01-01"}}, time.Minute))
	got, ok, err := c.Get(ctx, "daily")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx))
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("STATIONERY_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("STATIONERY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisReportCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}))
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := xid.New("test")
	want := []domain.DailySummary{{
		Day:         "2024-01-01",
		TotalSales:  decimal.RequireFromString("100.25"),
		TotalProfit: decimal.RequireFromString("20.5"),
	}}
	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01", got[0].Day)
	assert.True(t, got[0].TotalSales.Equal(want[0].TotalSales))

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
