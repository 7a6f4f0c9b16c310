// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/atmx/curve-engine/internal/bondingcurve"
)

type Config struct {
	// HTTP
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Storage
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Curve parameters applied to every new token.
	Curve bondingcurve.Params

	// Limits
	MaxWalletBps uint64

	// Optimistic-concurrency retry of trades.
	TradeMaxAttempts     uint
	TradeRetryInitial    time.Duration
	TradeRetryMaxBackoff time.Duration
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the configuration from the environment.
func Load() *Config {
	d := bondingcurve.DefaultParams()
	return &Config{
		Port:            getEnv("PORT", "8080"),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    getDurationEnv("CACHE_TTL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Curve: bondingcurve.Params{
			PlatformFeeBps:       getUint64Env("FEE_PLATFORM_BPS", d.PlatformFeeBps),
			CreatorFeeBps:        getUint64Env("FEE_CREATOR_BPS", d.CreatorFeeBps),
			InitialVirtualSol:    getUint64Env("INITIAL_VIRTUAL_SOL", d.InitialVirtualSol),
			InitialVirtualTokens: getUint64Env("INITIAL_VIRTUAL_TOKENS", d.InitialVirtualTokens),
			InitialRealTokens:    getUint64Env("INITIAL_REAL_TOKENS", d.InitialRealTokens),
			TotalSupply:          getUint64Env("TOTAL_SUPPLY", d.TotalSupply),
			GraduationThreshold:  getUint64Env("GRADUATION_THRESHOLD_LAMPORTS", d.GraduationThreshold),
			TokenDecimals:        int32(getIntEnv("TOKEN_DECIMALS", int(d.TokenDecimals))),
			SolDecimals:          d.SolDecimals,
			ImpactWarningPct:     getDecimalEnv("PRICE_IMPACT_WARNING_PCT", d.ImpactWarningPct),
			MaxBuyLamports:       getUint64Env("MAX_BUY_LAMPORTS", d.MaxBuyLamports),
		},

		MaxWalletBps: getUint64Env("MAX_WALLET_BPS", 0),

		TradeMaxAttempts:     uint(getIntEnv("TRADE_MAX_ATTEMPTS", 5)),
		TradeRetryInitial:    getDurationEnv("TRADE_RETRY_INITIAL", 5*time.Millisecond),
		TradeRetryMaxBackoff: getDurationEnv("TRADE_RETRY_MAX_BACKOFF", 200*time.Millisecond),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: PORT %q is not a number", c.Port)
	}
	if c.TradeMaxAttempts == 0 {
		return errors.New("config: TRADE_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxWalletBps > bondingcurve.BpsDenominator {
		return fmt.Errorf("config: MAX_WALLET_BPS %d exceeds %d", c.MaxWalletBps, bondingcurve.BpsDenominator)
	}
	if c.Curve.TokenDecimals < 0 || c.Curve.TokenDecimals > 18 {
		return fmt.Errorf("config: TOKEN_DECIMALS %d out of range", c.Curve.TokenDecimals)
	}
	if c.Curve.ImpactWarningPct.IsNegative() {
		return errors.New("config: PRICE_IMPACT_WARNING_PCT must not be negative")
	}
	if err := c.Curve.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint64Env(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	}
	return defaultVal
}

func getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
