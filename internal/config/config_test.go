package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// isolate runs the test in an empty working directory and home.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OPENAI_API_KEY", "")
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tenderwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	want := domain.DefaultConfig()
	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Repository.Driver, cfg.Repository.Driver)
	assert.Equal(t, want.Cache.LocalTTL, cfg.Cache.LocalTTL)
	assert.Equal(t, want.Opinion.Timeout, cfg.Opinion.Timeout)
	assert.Equal(t, want.Policy.Classification, cfg.Policy.Classification)
	assert.Equal(t, want.Policy.Blend, cfg.Policy.Blend)
	assert.Len(t, cfg.Policy.CostVariance.ZTiers, len(want.Policy.CostVariance.ZTiers))
}

func TestLoadFileOverrides(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
server:
  port: 9090
cache:
  localttl: 2m
policy:
  classification:
    critical_score: 90
  price_inflation:
    market_rates:
      Road Construction: 12345
`)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep the preset")
	assert.Equal(t, 2*time.Minute, cfg.Cache.LocalTTL)
	assert.Equal(t, 90.0, cfg.Policy.Classification.CriticalScore)
	assert.Equal(t, domain.DefaultPolicy().Classification.HighScore, cfg.Policy.Classification.HighScore)

	rate, ok := cfg.Policy.PriceInflation.MarketRate("Road Construction")
	require.True(t, ok)
	assert.Equal(t, 12345.0, rate)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "server:\n  port: 9090\n")
	t.Setenv("TENDERWATCH_SERVER_PORT", "7070")
	t.Setenv("TENDERWATCH_LOGGING_FORMAT", "text")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadTier(t *testing.T) {
	t.Run("FromFile", func(t *testing.T) {
		dir := isolate(t)
		writeConfig(t, dir, "tier: pro\nrepository:\n  postgreshost: db.internal\n")

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, domain.TierPro, cfg.Tier)
		assert.Equal(t, "postgres", cfg.Repository.Driver)
		assert.Equal(t, "db.internal", cfg.Repository.PostgresHost)
		assert.Equal(t, "nats", cfg.EventBus.Type)
		assert.True(t, cfg.Worker.Enabled)
	})

	t.Run("FromEnv", func(t *testing.T) {
		isolate(t)
		t.Setenv("TENDERWATCH_TIER", "PRO")

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.Cache.Type)
	})

	t.Run("Unknown", func(t *testing.T) {
		isolate(t)
		t.Setenv("TENDERWATCH_TIER", "platinum")

		_, err := Load(viper.New(), "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoadShortcuts(t *testing.T) {
	isolate(t)
	t.Setenv("TENDERWATCH_DEBUG", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-test", cfg.Opinion.APIKey)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingExplicitFile", func(t *testing.T) {
		dir := isolate(t)
		_, err := Load(viper.New(), filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("BadLevel", func(t *testing.T) {
		dir := isolate(t)
		writeConfig(t, dir, "logging:\n  level: loud\n")
		_, err := Load(viper.New(), "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("FallingThresholds", func(t *testing.T) {
		dir := isolate(t)
		writeConfig(t, dir, "policy:\n  classification:\n    high_score: 95\n")
		_, err := Load(viper.New(), "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "claim_id", "c-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "c-1", line["claim_id"])

	_, err = NewLogger(domain.LoggingConfig{Level: "verbose"}, &buf)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
