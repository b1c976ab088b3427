package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "STATIONERY_STORE_DRIVER", "STATIONERY_TAX_RATE", "STATIONERY_APP_PORT",
		"STATIONERY_TRUST_CLIENT_PRICE", "STATIONERY_MUTATION_TIMEOUT",
		"STATIONERY_LOW_STOCK_THRESHOLD", "STATIONERY_REPORT_WINDOW_DAYS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.DB.Driver)
	assert.Equal(t, ":8080", cfg.App.Address())
	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.10")))
	assert.False(t, cfg.Checkout.TrustClientPrice)
	assert.Equal(t, 10*time.Second, cfg.Checkout.MutationTimeout)
	assert.Equal(t, 10, cfg.Report.LowStockThreshold)
	assert.Equal(t, 7, cfg.Report.WindowDays)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("STATIONERY_STORE_DRIVER", "SQLite")
	t.Setenv("STATIONERY_TAX_RATE", "0.125")
	t.Setenv("STATIONERY_APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, ":9090", cfg.App.Address())
	assert.Equal(t, "0.125", cfg.Checkout.TaxRate.String())
}

func TestLoadRejectsPostgresWithoutURL(t *testing.T) {
	t.Setenv("STATIONERY_STORE_DRIVER", "postgres")
	unsetEnv(t, "STATIONERY_DATABASE_URL")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STATIONERY_STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
}

// unsetEnv clears keys for the test while letting t.Setenv restore them.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
