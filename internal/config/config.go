package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Checkout CheckoutConfig
	Report   ReportConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"STATIONERY_APP_ENV" default:"dev"`
	Port          string `envconfig:"STATIONERY_APP_PORT" default:"8080"`
	LogLevel      string `envconfig:"STATIONERY_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"STATIONERY_LOG_WARN_STACK" default:"false"`
	AllowedOrigin string `envconfig:"STATIONERY_ALLOWED_ORIGIN" default:"*"`
}

func (a AppConfig) Address() string {
	return fmt.Sprintf(":%s", a.Port)
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type DBConfig struct {
	Driver          string        `envconfig:"STATIONERY_STORE_DRIVER" default:"memory"`
	URL             string        `envconfig:"STATIONERY_DATABASE_URL"`
	SQLitePath      string        `envconfig:"STATIONERY_SQLITE_PATH" default:"stationery.db"`
	AutoMigrate     bool          `envconfig:"STATIONERY_DB_AUTO_MIGRATE" default:"true"`
	MaxOpenConns    int           `envconfig:"STATIONERY_DB_MAX_OPEN_CONNS" default:"30"`
	MaxIdleConns    int           `envconfig:"STATIONERY_DB_MAX_IDLE_CONNS" default:"8"`
	ConnMaxLifetime time.Duration `envconfig:"STATIONERY_DB_CONN_MAX_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"STATIONERY_REDIS_ADDR"`
	Password string        `envconfig:"STATIONERY_REDIS_PASSWORD"`
	DB       int           `envconfig:"STATIONERY_REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"STATIONERY_REPORT_CACHE_TTL" default:"30s"`
}

type CheckoutConfig struct {
	TaxRate          decimal.Decimal `envconfig:"STATIONERY_TAX_RATE" default:"0.10"`
	TrustClientPrice bool            `envconfig:"STATIONERY_TRUST_CLIENT_PRICE" default:"false"`
	MutationTimeout  time.Duration   `envconfig:"STATIONERY_MUTATION_TIMEOUT" default:"10s"`
}

type ReportConfig struct {
	LowStockThreshold int `envconfig:"STATIONERY_LOW_STOCK_THRESHOLD" default:"10"`
	WindowDays        int `envconfig:"STATIONERY_REPORT_WINDOW_DAYS" default:"7"`
}

func (c *Config) validate() error {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	switch c.DB.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.DB.URL) == "" {
			return fmt.Errorf("STATIONERY_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported STATIONERY_STORE_DRIVER %q", c.DB.Driver)
	}
	if c.Checkout.TaxRate.IsNegative() {
		return fmt.Errorf("STATIONERY_TAX_RATE must not be negative")
	}
	if c.Checkout.MutationTimeout <= 0 {
		return fmt.Errorf("STATIONERY_MUTATION_TIMEOUT must be positive")
	}
	if c.Report.WindowDays < 1 {
		return fmt.Errorf("STATIONERY_REPORT_WINDOW_DAYS must be at least 1")
	}
	return nil
}
