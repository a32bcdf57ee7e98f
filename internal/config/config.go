// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds storage settings.
type DBConfig struct {
	Driver          string        // "postgres" | "memory" (dev only)
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	AccessSecret  string        // must be set
	RefreshSecret string        // must be set
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 720h (30 days)
}

// OracleConfig holds price feed settings.
type OracleConfig struct {
	CoinbaseURL    string        // default "https://api.coinbase.com"
	BinanceURL     string        // default "https://api.binance.com"
	FetchTimeout   time.Duration // default 2s
	PollInterval   time.Duration // how often the scheduler refreshes feeds
	StalenessLimit time.Duration // max reading age before prices are rejected
}

// RiskConfig holds the engine's solvency parameters.
type RiskConfig struct {
	LiquidationThreshold float64       // fraction of collateral value counted, e.g. 0.5
	LiquidationBonus     float64       // liquidator reward fraction, e.g. 0.1
	WarnRatio            float64       // health factor below this is "at risk", e.g. 1.25
	SweepInterval        time.Duration // how often the risk sweep scans positions
	CollateralAssets     string        // "WETH=ETH-USD,WBTC=BTC-USD"
}

// TokenConfig holds dev-mode faucet settings.
type TokenConfig struct {
	FaucetEnabled bool    // only honoured outside production
	FaucetAmount  float64 // collateral units granted per faucet call
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	JWT    JWTConfig
	Oracle OracleConfig
	Risk   RiskConfig
	Token  TokenConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	// JWT secrets are mandatory
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}

	if c.DB.Driver != "postgres" && c.DB.Driver != "memory" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.DB.Driver))
	}
	// In production, storage must be durable and the DSN explicit
	if c.IsProd() {
		if c.DB.Driver != "postgres" {
			errs = append(errs, errors.New("DB_DRIVER must be postgres in production"))
		}
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
		if c.Token.FaucetEnabled {
			errs = append(errs, errors.New("FAUCET_ENABLED is not allowed in production"))
		}
	}

	// Risk parameter sanity checks
	if c.Risk.LiquidationThreshold <= 0 || c.Risk.LiquidationThreshold > 1 {
		errs = append(errs, fmt.Errorf(
			"RISK_LIQUIDATION_THRESHOLD must be in (0, 1], got %.4f",
			c.Risk.LiquidationThreshold,
		))
	}
	if c.Risk.LiquidationBonus < 0 || c.Risk.LiquidationBonus >= 1 {
		errs = append(errs, fmt.Errorf(
			"RISK_LIQUIDATION_BONUS must be in [0, 1), got %.4f",
			c.Risk.LiquidationBonus,
		))
	}
	if c.Risk.WarnRatio < 1 {
		errs = append(errs, fmt.Errorf(
			"RISK_WARN_RATIO must be at least 1, got %.4f", c.Risk.WarnRatio,
		))
	}
	if c.Risk.CollateralAssets == "" {
		errs = append(errs, errors.New("RISK_COLLATERAL_ASSETS must list at least one asset"))
	}

	if c.Oracle.StalenessLimit <= 0 {
		errs = append(errs, errors.New("ORACLE_STALENESS_LIMIT must be positive"))
	}
	if c.Oracle.PollInterval >= c.Oracle.StalenessLimit {
		errs = append(errs, fmt.Errorf(
			"ORACLE_POLL_INTERVAL (%s) must be shorter than ORACLE_STALENESS_LIMIT (%s)",
			c.Oracle.PollInterval, c.Oracle.StalenessLimit,
		))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "synthd"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		Driver:          getEnv("DB_DRIVER", "postgres"),
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}

	// ── Oracle ────────────────────────────────────────────────────────────────
	cfg.Oracle = OracleConfig{
		CoinbaseURL:    getEnv("ORACLE_COINBASE_URL", "https://api.coinbase.com"),
		BinanceURL:     getEnv("ORACLE_BINANCE_URL", "https://api.binance.com"),
		FetchTimeout:   getDuration("ORACLE_FETCH_TIMEOUT", 2*time.Second),
		PollInterval:   getDuration("ORACLE_POLL_INTERVAL", 30*time.Second),
		StalenessLimit: getDuration("ORACLE_STALENESS_LIMIT", 3*time.Hour),
	}

	// ── Risk ──────────────────────────────────────────────────────────────────
	threshold, err := getFloat("RISK_LIQUIDATION_THRESHOLD", 0.5)
	if err != nil {
		return nil, fmt.Errorf("RISK_LIQUIDATION_THRESHOLD: %w", err)
	}
	bonus, err := getFloat("RISK_LIQUIDATION_BONUS", 0.1)
	if err != nil {
		return nil, fmt.Errorf("RISK_LIQUIDATION_BONUS: %w", err)
	}
	warn, err := getFloat("RISK_WARN_RATIO", 1.25)
	if err != nil {
		return nil, fmt.Errorf("RISK_WARN_RATIO: %w", err)
	}

	cfg.Risk = RiskConfig{
		LiquidationThreshold: threshold,
		LiquidationBonus:     bonus,
		WarnRatio:            warn,
		SweepInterval:        getDuration("RISK_SWEEP_INTERVAL", 1*time.Minute),
		CollateralAssets:     getEnv("RISK_COLLATERAL_ASSETS", "WETH=ETH-USD,WBTC=BTC-USD"),
	}

	// ── Token ─────────────────────────────────────────────────────────────────
	faucetAmount, err := getFloat("FAUCET_AMOUNT", 10)
	if err != nil {
		return nil, fmt.Errorf("FAUCET_AMOUNT: %w", err)
	}
	cfg.Token = TokenConfig{
		FaucetEnabled: getEnv("FAUCET_ENABLED", "false") == "true",
		FaucetAmount:  faucetAmount,
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
