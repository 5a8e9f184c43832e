package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dentallab/labdesk/internal/domain/quote"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	StoreDriver       string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SessionIdleTTL    time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	ShipmentCost      string        `mapstructure:"SHIPMENT_COST"`
	FallbackUnitPrice string        `mapstructure:"FALLBACK_UNIT_PRICE"`

	// Prices holds PRICE_<MATERIAL> overrides keyed by material name.
	Prices map[string]string `mapstructure:"-"`
}

// PriceEnvKey is the environment variable overriding the unit price of m,
// e.g. PRICE_ZIRCONIO.
func PriceEnvKey(m quote.Material) string {
	return "PRICE_" + strings.ToUpper(string(m))
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "labdesk.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SESSION_IDLE_TTL", 2*time.Hour)
	v.SetDefault("SHIPMENT_COST", quote.DefaultShipmentCost.String())
	v.SetDefault("FALLBACK_UNIT_PRICE", quote.DefaultFallbackPrice.String())

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS", "BODY_LIMIT",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "SESSION_IDLE_TTL",
		"SHIPMENT_COST", "FALLBACK_UNIT_PRICE",
	} {
		_ = v.BindEnv(key)
	}
	for _, m := range quote.Materials() {
		_ = v.BindEnv(PriceEnvKey(m))
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	origins := v.GetString("CORS_ORIGINS")
	if len(cfg.CORSOrigins) <= 1 && origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	cfg.Prices = make(map[string]string)
	for _, m := range quote.Materials() {
		if p := strings.TrimSpace(v.GetString(PriceEnvKey(m))); p != "" {
			cfg.Prices[string(m)] = p
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without identity headers are served as an admin.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is consistent: a known store driver
// with its connection setting, a sane pool size, positive limits and
// parseable prices.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=%s", DriverSQLite)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %g/%d", c.RateLimitRPS, c.RateLimitBurst)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	}

	if _, err := c.Calculator(); err != nil {
		return err
	}
	return nil
}

// Calculator builds the quote calculator from the default price table with
// the configured overrides applied.
func (c *Config) Calculator() (*quote.Calculator, error) {
	shipment, err := parseAmount("SHIPMENT_COST", c.ShipmentCost, quote.DefaultShipmentCost)
	if err != nil {
		return nil, err
	}
	fallback, err := parseAmount("FALLBACK_UNIT_PRICE", c.FallbackUnitPrice, quote.DefaultFallbackPrice)
	if err != nil {
		return nil, err
	}
	overrides, err := quote.ParsePriceTable(c.Prices)
	if err != nil {
		return nil, fmt.Errorf("PRICE_*: %w", err)
	}
	prices := quote.DefaultPriceTable()
	for m, p := range overrides {
		prices[m] = p
	}
	return quote.NewCalculator(prices, shipment, fallback), nil
}

func parseAmount(key, raw string, def decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s is not a valid amount: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", key, raw)
	}
	return d, nil
}
