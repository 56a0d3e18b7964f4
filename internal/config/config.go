// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
	"github.com/aristath/alphaledger/pkg/money"
)

// Trading environments. Everything boots in paper unless explicitly
// switched to live.
const (
	EnvPaper = "paper"
	EnvLive  = "live"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for all databases (always absolute)
	Port         int
	LogLevel     string
	DevMode      bool
	Environment  string // "paper" or "live"
	PassSchedule string // Cron expression for the daily pass

	// PaperStartingCash seeds the simulated account when running in the
	// paper environment. Ignored for live.
	PaperStartingCash decimal.Decimal

	// S3-compatible backup of the databases (optional; enabled when
	// BackupBucket is set)
	BackupBucket        string
	BackupEndpoint      string
	BackupRegion        string
	BackupAccessKey     string
	BackupSecretKey     string
	BackupRetentionDays int

	Trading *TradingConfig
}

// TradingConfig holds the validated risk and signal parameters for one
// environment, loaded once per process. All fields are explicit and
// validated at load time - malformed values fail here, not deep inside
// the sizing math.
type TradingConfig struct {
	StrategyWeights domain.StrategyWeightTable

	RiskTargetPct             float64         // Fraction of equity risked per position (e.g. 0.01)
	ATRLookback               int             // Bars averaged for the ATR estimate
	DefaultVolatilityFraction float64         // Fallback ATR = price * this, when bar history is short
	MaxPositionPct            float64         // Hard cap per position as fraction of equity
	MinPositionValue          decimal.Decimal // Positions below this are dropped
	PriceBlockTTL             time.Duration   // How long an instrument stays blocked after a missing price
	SignalWindowDays          int             // Transaction-date window producers query

	// IncludeUnknownRevenue controls the contracts producer when annual
	// revenue is unavailable: true includes the contract with a reduced
	// default score (permissive, matches historical behavior), false
	// excludes it. Deliberately an explicit, named policy flag.
	IncludeUnknownRevenue bool

	RebalancingEnabled bool // When false, passes produce targets but no orders
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LEDGER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	environment := getEnv("TRADING_ENV", EnvPaper)
	if environment != EnvPaper && environment != EnvLive {
		return nil, fmt.Errorf("unknown trading environment %q (want %q or %q)", environment, EnvPaper, EnvLive)
	}

	trading, err := loadTradingConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid trading configuration: %w", err)
	}

	startingCash, err := money.ParseAmount(getEnv("PAPER_STARTING_CASH", "$100000"))
	if err != nil {
		return nil, fmt.Errorf("PAPER_STARTING_CASH: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("GO_PORT", 8001),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		Environment:         environment,
		PassSchedule:        getEnv("PASS_SCHEDULE", "0 30 14 * * 1-5"), // Weekdays, pre-open
		PaperStartingCash:   startingCash,
		BackupBucket:        getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:      getEnv("BACKUP_ENDPOINT", ""),
		BackupRegion:        getEnv("BACKUP_REGION", "auto"),
		BackupAccessKey:     getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey:     getEnv("BACKUP_SECRET_KEY", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		Trading:             trading,
	}

	return cfg, nil
}

// loadTradingConfig reads and validates the risk parameters and strategy
// weight table from the environment.
func loadTradingConfig() (*TradingConfig, error) {
	weights, err := ParseStrategyWeights(getEnv("STRATEGY_WEIGHTS", "congress=0.35,insider=0.30,lobbying=0.15,contracts=0.20"))
	if err != nil {
		return nil, err
	}

	minPosition, err := money.ParseAmount(getEnv("MIN_POSITION_VALUE", "$250"))
	if err != nil {
		return nil, fmt.Errorf("MIN_POSITION_VALUE: %w", err)
	}

	cfg := &TradingConfig{
		StrategyWeights:           weights,
		RiskTargetPct:             getEnvAsFloat("RISK_TARGET_PCT", 0.01),
		ATRLookback:               getEnvAsInt("ATR_LOOKBACK", 14),
		DefaultVolatilityFraction: getEnvAsFloat("DEFAULT_VOLATILITY_FRACTION", 0.03),
		MaxPositionPct:            getEnvAsFloat("MAX_POSITION_PCT", 0.10),
		MinPositionValue:          minPosition,
		PriceBlockTTL:             time.Duration(getEnvAsInt("PRICE_BLOCK_TTL_HOURS", 168)) * time.Hour,
		SignalWindowDays:          getEnvAsInt("SIGNAL_WINDOW_DAYS", 90),
		IncludeUnknownRevenue:     getEnvAsBool("INCLUDE_UNKNOWN_REVENUE", true),
		RebalancingEnabled:        getEnvAsBool("REBALANCING_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on deployment mistakes. These are configuration
// errors: a pass must never start with an invalid risk setup.
func (c *TradingConfig) Validate() error {
	if err := c.StrategyWeights.Validate(); err != nil {
		return err
	}
	if c.RiskTargetPct <= 0 || c.RiskTargetPct > 0.10 {
		return fmt.Errorf("risk_target_pct %.4f out of range (0, 0.10]", c.RiskTargetPct)
	}
	if c.ATRLookback < 1 {
		return fmt.Errorf("atr_lookback %d must be at least 1", c.ATRLookback)
	}
	if c.DefaultVolatilityFraction <= 0 || c.DefaultVolatilityFraction > 0.50 {
		return fmt.Errorf("default_volatility_fraction %.4f out of range (0, 0.50]", c.DefaultVolatilityFraction)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1.0 {
		return fmt.Errorf("max_position_pct %.4f out of range (0, 1]", c.MaxPositionPct)
	}
	if c.MinPositionValue.IsNegative() {
		return fmt.Errorf("min_position_value %s must not be negative", c.MinPositionValue)
	}
	if c.PriceBlockTTL <= 0 {
		return fmt.Errorf("price_block_ttl must be positive")
	}
	if c.SignalWindowDays < 1 {
		return fmt.Errorf("signal_window_days %d must be at least 1", c.SignalWindowDays)
	}
	return nil
}

// ParseStrategyWeights parses "congress=0.35,insider=0.30" into a weight
// table. Unknown keys are rejected here rather than silently ignored
// during netting.
func ParseStrategyWeights(s string) (domain.StrategyWeightTable, error) {
	known := map[string]bool{
		"congress":  true,
		"insider":   true,
		"lobbying":  true,
		"contracts": true,
	}

	table := make(domain.StrategyWeightTable)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed weight entry %q", pair)
		}
		name := strings.TrimSpace(parts[0])
		if !known[name] {
			return nil, fmt.Errorf("unknown strategy %q in weight table", name)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for strategy %q: %w", name, err)
		}
		if w < 0 {
			return nil, fmt.Errorf("strategy %q has negative weight %.4f", name, w)
		}
		table[name] = w
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("strategy weight table is empty")
	}
	return table, nil
}

// getEnv retrieves an environment variable value, returning a fallback if
// the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float64
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
