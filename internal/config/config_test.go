package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/curve-engine/internal/bondingcurve"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, bondingcurve.DefaultParams(), cfg.Curve)
	assert.Zero(t, cfg.MaxWalletBps)
	assert.Equal(t, uint(5), cfg.TradeMaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FEE_PLATFORM_BPS", "50")
	t.Setenv("FEE_CREATOR_BPS", "25")
	t.Setenv("GRADUATION_THRESHOLD_LAMPORTS", "85000000000")
	t.Setenv("PRICE_IMPACT_WARNING_PCT", "2.5")
	t.Setenv("MAX_BUY_LAMPORTS", "10000000000")
	t.Setenv("MAX_WALLET_BPS", "200")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("TRADE_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, uint64(75), cfg.Curve.TotalFeeBps())
	assert.Equal(t, uint64(85_000_000_000), cfg.Curve.GraduationThreshold)
	assert.True(t, cfg.Curve.ImpactWarningPct.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, uint64(10_000_000_000), cfg.Curve.MaxBuyLamports)
	assert.Equal(t, uint64(200), cfg.MaxWalletBps)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, uint(5), cfg.TradeMaxAttempts, "unparsable values fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = "http" }},
		{"attempts", func(c *Config) { c.TradeMaxAttempts = 0 }},
		{"wallet bps", func(c *Config) { c.MaxWalletBps = 10_001 }},
		{"decimals", func(c *Config) { c.Curve.TokenDecimals = 19 }},
		{"warning", func(c *Config) { c.Curve.ImpactWarningPct = decimal.NewFromInt(-1) }},
		{"fees", func(c *Config) { c.Curve.PlatformFeeBps = 10_000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CURVE_TEST_FROM_DOTENV=yes\n"), 0o600))
	t.Setenv("CURVE_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("CURVE_TEST_FROM_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("CURVE_TEST_FROM_DOTENV"))
}
