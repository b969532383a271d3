package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.ActionTimeout())
	assert.Equal(t, 5*time.Second, cfg.InterHandDelay())
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "main", cfg.Tables[0].Name)
}

func TestLoadConfigFromHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
server {
  address                  = "0.0.0.0"
  port                     = 9000
  log_level                = "debug"
  wallet_path              = "/var/lib/tableserver/wallet.db"
  action_timeout_seconds   = 20
  inter_hand_delay_seconds = 3
}

table "high-stakes" {
  max_seats   = 9
  small_blind = 50
  big_blind   = 100
  buy_in_min  = 5000
  buy_in_max  = 50000
  auto_start  = true
}

table "micro" {
  small_blind = 1
  big_blind   = 2
}
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, 20*time.Second, cfg.ActionTimeout())
	require.Len(t, cfg.Tables, 2)

	high := cfg.Tables[0]
	assert.Equal(t, 9, high.MaxSeats)
	assert.Equal(t, 100, high.BigBlind)
	assert.True(t, high.AutoStart)

	// The micro table picked up the blind-derived defaults.
	micro := cfg.Tables[1]
	assert.Equal(t, 6, micro.MaxSeats)
	assert.Equal(t, 100, micro.BuyInMin)
	assert.Equal(t, 1000, micro.BuyInMax)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no tables", func(c *Config) { c.Tables = nil }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero small blind", func(c *Config) { c.Tables[0].SmallBlind = 0 }},
		{"big blind below small", func(c *Config) { c.Tables[0].BigBlind = c.Tables[0].SmallBlind }},
		{"one seat", func(c *Config) { c.Tables[0].MaxSeats = 1 }},
		{"inverted buy-in bounds", func(c *Config) { c.Tables[0].BuyInMin = c.Tables[0].BuyInMax }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
