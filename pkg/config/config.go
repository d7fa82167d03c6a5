package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CARTSYNC"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv          = "CARTSYNC_APP_ENV"
	EnvLogLevel        = "CARTSYNC_LOG_LEVEL"
	EnvRemoteBaseURL   = "CARTSYNC_REMOTE_BASE_URL"
	EnvDBDSN           = "CARTSYNC_DB_DSN"
	EnvPricingCurrency = "CARTSYNC_PRICING_CURRENCY"
	EnvPricingShipping = "CARTSYNC_PRICING_SHIPPING_CENTS"
)

type Config struct {
	App         AppConfig
	RemoteStore RemoteStoreConfig
	DB          DBConfig
	Pricing     PricingConfig
}

// Load reads configuration from the environment. In development a .env file
// alongside the process is honoured before envconfig runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTSYNC_APP_ENV" default:"development"`
	LogLevel     string `envconfig:"CARTSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// RemoteStoreConfig drives the HTTP adapter for the authoritative cart store.
type RemoteStoreConfig struct {
	BaseURL        string        `envconfig:"CARTSYNC_REMOTE_BASE_URL"`
	RequestTimeout time.Duration `envconfig:"CARTSYNC_REMOTE_REQUEST_TIMEOUT" default:"10s"`
	RetryMax       int           `envconfig:"CARTSYNC_REMOTE_RETRY_MAX" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"CARTSYNC_REMOTE_RETRY_BASE_DELAY" default:"200ms"`
}

// DBConfig backs the embedded reference store. SQLite is the default so the
// module runs without a provisioned database.
type DBConfig struct {
	DSN    string `envconfig:"CARTSYNC_DB_DSN" default:"file::memory:?cache=shared"`
	Driver string `envconfig:"CARTSYNC_DB_DRIVER" default:"sqlite"`

	MaxOpenConns    int           `envconfig:"CARTSYNC_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CARTSYNC_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CARTSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// UseSQLite reports whether the embedded sqlite driver should be used.
func (db DBConfig) UseSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type PricingConfig struct {
	Currency             string `envconfig:"CARTSYNC_PRICING_CURRENCY" default:"USD"`
	DefaultShippingCents int64  `envconfig:"CARTSYNC_PRICING_SHIPPING_CENTS" default:"0"`
}
