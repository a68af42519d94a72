package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coinex.yaml")
	err := os.WriteFile(path, []byte(`
markets: ["ETH_USDT", "BTC_USDT"]
depth_limit: 20
ping_interval: 5s
checksum_failure_threshold: 2
`), 0o600)
	require.NoError(t, err)

	t.Setenv("COINEX_CONFIG", path)
	t.Setenv("COINEX_DEPTH_LIMIT", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH_USDT", "BTC_USDT"}, cfg.Markets)
	assert.Equal(t, 10, cfg.DepthLimit, "env should override the file")
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 2, cfg.ChecksumFailureThreshold)
	assert.Equal(t, "wss://socket.coinex.com/v2/spot", cfg.WSURL, "defaults should survive")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Defaults", func(c *Config) {}, false},
		{"NoMarkets", func(c *Config) { c.Markets = nil }, true},
		{"UnsupportedDepth", func(c *Config) { c.DepthLimit = 7 }, true},
		{"ZeroDialAttempts", func(c *Config) { c.DialAttempts = 0 }, true},
		{"ZeroThreshold", func(c *Config) { c.ChecksumFailureThreshold = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitOrDefault(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitOrDefault(" a, ,b ", nil))
	assert.Equal(t, []string{"x"}, splitOrDefault("  ", []string{"x"}))
}
