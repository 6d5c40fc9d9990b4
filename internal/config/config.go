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

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
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

// ComplianceConfig holds the gate policy switches and the bounded-iteration
// caps. The caps are deliberate backpressure limits: they keep each call's
// resource cost constant regardless of input size.
type ComplianceConfig struct {
	MaxBatchReport              int           // derivative batch report cap, inclusive (default 20)
	MaxUnderlyingTrades         int           // position-report underlying list cap (default 50)
	MaxPendingIssuanceReplay    int           // withheld issuances released per verification event (default 100)
	VerificationRequestTTL      time.Duration // pending KYC request expiry (default 72h)
	ForceTransferRespectsLockup bool          // audited policy choice (default true)
}

// RateLimitConfig holds the per-IP request allowances for the abuse-prone
// route groups. Values are requests per second.
type RateLimitConfig struct {
	AuthRPS     int // login/register/refresh (default 10)
	TransferRPS int // ledger movement endpoints (default 30)
	CallbackRPS int // KYC provider webhook (default 20)
}

// ValuationConfig holds the external valuation feed settings. Marks older
// than StaleAfter are a hard precondition failure for valuation-dependent
// reporting paths.
type ValuationConfig struct {
	FeedURL      string        // valuation feed base URL
	FetchTimeout time.Duration // default 3s
	CacheTTL     time.Duration // default 30s
	StaleAfter   time.Duration // default 15m
}

// TradeRepositoryConfig holds the external trade repository endpoint that
// receives a durable copy of every report/correct/error call.
type TradeRepositoryConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // default 10s
}

// CSDConfig holds the reconciliation endpoints for the supported central
// securities depositories.
type CSDConfig struct {
	ClearstreamURL    string
	ClearstreamAPIKey string
	EuroclearURL      string
	EuroclearAPIKey   string
	Timeout           time.Duration // default 30s
	MaxConcurrent     int           // bounded-concurrency batch verify (default 5)
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	JWT        JWTConfig
	Compliance ComplianceConfig
	RateLimit  RateLimitConfig
	Valuation  ValuationConfig
	TradeRepo  TradeRepositoryConfig
	CSD        CSDConfig
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

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	// Caps must stay positive; zero would silently disable whole subsystems.
	if c.Compliance.MaxBatchReport <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BATCH_REPORT must be > 0, got %d", c.Compliance.MaxBatchReport))
	}
	if c.Compliance.MaxUnderlyingTrades <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UNDERLYING_TRADES must be > 0, got %d", c.Compliance.MaxUnderlyingTrades))
	}
	if c.Compliance.MaxPendingIssuanceReplay <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PENDING_ISSUANCE_REPLAY must be > 0, got %d", c.Compliance.MaxPendingIssuanceReplay))
	}
	if c.Compliance.VerificationRequestTTL <= 0 {
		errs = append(errs, errors.New("VERIFICATION_REQUEST_TTL must be a positive duration"))
	}

	if c.RateLimit.AuthRPS <= 0 || c.RateLimit.TransferRPS <= 0 || c.RateLimit.CallbackRPS <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_*_RPS values must be > 0"))
	}

	if c.Valuation.StaleAfter <= 0 {
		errs = append(errs, errors.New("VALUATION_STALE_AFTER must be a positive duration"))
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
			getEnv("DB_NAME", "issuance_ledger"),
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

	// ── Compliance caps & policy ──────────────────────────────────────────────
	maxBatch, err := getInt("MAX_BATCH_REPORT", 20)
	if err != nil {
		return nil, fmt.Errorf("MAX_BATCH_REPORT: %w", err)
	}
	maxUnderlying, err := getInt("MAX_UNDERLYING_TRADES", 50)
	if err != nil {
		return nil, fmt.Errorf("MAX_UNDERLYING_TRADES: %w", err)
	}
	maxReplay, err := getInt("MAX_PENDING_ISSUANCE_REPLAY", 100)
	if err != nil {
		return nil, fmt.Errorf("MAX_PENDING_ISSUANCE_REPLAY: %w", err)
	}

	cfg.Compliance = ComplianceConfig{
		MaxBatchReport:              maxBatch,
		MaxUnderlyingTrades:         maxUnderlying,
		MaxPendingIssuanceReplay:    maxReplay,
		VerificationRequestTTL:      getDuration("VERIFICATION_REQUEST_TTL", 72*time.Hour),
		ForceTransferRespectsLockup: getBool("FORCE_TRANSFER_RESPECTS_LOCKUP", true),
	}

	// ── Rate limits ───────────────────────────────────────────────────────────
	authRPS, err := getInt("RATE_LIMIT_AUTH_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_AUTH_RPS: %w", err)
	}
	transferRPS, err := getInt("RATE_LIMIT_TRANSFER_RPS", 30)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_TRANSFER_RPS: %w", err)
	}
	callbackRPS, err := getInt("RATE_LIMIT_CALLBACK_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_CALLBACK_RPS: %w", err)
	}
	cfg.RateLimit = RateLimitConfig{
		AuthRPS:     authRPS,
		TransferRPS: transferRPS,
		CallbackRPS: callbackRPS,
	}

	// ── Valuation feed ────────────────────────────────────────────────────────
	cfg.Valuation = ValuationConfig{
		FeedURL:      getEnv("VALUATION_FEED_URL", "https://marks.dpo-global.com"),
		FetchTimeout: getDuration("VALUATION_FETCH_TIMEOUT", 3*time.Second),
		CacheTTL:     getDuration("VALUATION_CACHE_TTL", 30*time.Second),
		StaleAfter:   getDuration("VALUATION_STALE_AFTER", 15*time.Minute),
	}

	// ── External trade repository ─────────────────────────────────────────────
	cfg.TradeRepo = TradeRepositoryConfig{
		Endpoint: getEnv("TRADE_REPO_ENDPOINT", "https://tr.dpo-global.com"),
		APIKey:   getEnv("TRADE_REPO_API_KEY", ""),
		Timeout:  getDuration("TRADE_REPO_TIMEOUT", 10*time.Second),
	}

	// ── CSD reconciliation ────────────────────────────────────────────────────
	maxConcurrent, err := getInt("CSD_MAX_CONCURRENT", 5)
	if err != nil {
		return nil, fmt.Errorf("CSD_MAX_CONCURRENT: %w", err)
	}
	cfg.CSD = CSDConfig{
		ClearstreamURL:    getEnv("CSD_CLEARSTREAM_URL", ""),
		ClearstreamAPIKey: getEnv("CSD_CLEARSTREAM_API_KEY", ""),
		EuroclearURL:      getEnv("CSD_EUROCLEAR_URL", ""),
		EuroclearAPIKey:   getEnv("CSD_EUROCLEAR_API_KEY", ""),
		Timeout:           getDuration("CSD_TIMEOUT", 30*time.Second),
		MaxConcurrent:     maxConcurrent,
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

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
		// Fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
