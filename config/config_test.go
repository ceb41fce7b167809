package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "spot", cfg.Market)
	assert.Equal(t, []string{"btc_usdt"}, cfg.Symbols)
	assert.Equal(t, 1000, cfg.Book.SnapshotDepth)
	assert.Equal(t, 1000, cfg.Book.DiffBufferLimit)
	assert.Equal(t, 256, cfg.Book.SubscriberQueueSize)
	assert.Equal(t, 5, cfg.Book.MaxResyncAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Book.BackoffMin)
	assert.Equal(t, 30*time.Second, cfg.Book.BackoffMax)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Metrics.Addr)
}

func TestLoad_YamlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
market: futures
symbols: [eth_usdt, btc_usdt]
book:
  snapshot_depth: 500
  max_resync_attempts: 3
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("DEPTHBRIDGE_CONFIG", path)

	cfg := Load()

	assert.Equal(t, "futures", cfg.Market)
	assert.Equal(t, []string{"eth_usdt", "btc_usdt"}, cfg.Symbols)
	assert.Equal(t, 500, cfg.Book.SnapshotDepth)
	assert.Equal(t, 3, cfg.Book.MaxResyncAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.Book.DiffBufferLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("market: futures\n"), 0o600))
	t.Setenv("DEPTHBRIDGE_CONFIG", path)
	t.Setenv("DEPTHBRIDGE_MARKET", "spot")
	t.Setenv("DEPTHBRIDGE_SYMBOLS", "sol_usdt,doge_usdt")
	t.Setenv("DEPTHBRIDGE_LOG_LEVEL", "trace")
	t.Setenv("DEPTHBRIDGE_METRICS_ADDR", ":9090")
	t.Setenv("DEPTHBRIDGE_MAX_RESYNC_ATTEMPTS", "7")

	cfg := Load()

	assert.Equal(t, "spot", cfg.Market)
	assert.Equal(t, []string{"sol_usdt", "doge_usdt"}, cfg.Symbols)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 7, cfg.Book.MaxResyncAttempts)
}

func TestLoad_IgnoresInvalidResyncAttempts(t *testing.T) {
	t.Setenv("DEPTHBRIDGE_MAX_RESYNC_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 5, cfg.Book.MaxResyncAttempts)
}
