package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/tableserver/internal/game"
)

// Config is the full server configuration decoded from HCL.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address               string `hcl:"address,optional"`
	Port                  int    `hcl:"port,optional"`
	LogLevel              string `hcl:"log_level,optional"`
	WalletPath            string `hcl:"wallet_path,optional"`
	ActionTimeoutSeconds  int    `hcl:"action_timeout_seconds,optional"`
	InterHandDelaySeconds int    `hcl:"inter_hand_delay_seconds,optional"`
}

// TableConfig defines one configured table.
type TableConfig struct {
	Name       string `hcl:"name,label"`
	MaxSeats   int    `hcl:"max_seats,optional"`
	SmallBlind int    `hcl:"small_blind"`
	BigBlind   int    `hcl:"big_blind"`
	BuyInMin   int    `hcl:"buy_in_min,optional"`
	BuyInMax   int    `hcl:"buy_in_max,optional"`
	AutoStart  bool   `hcl:"auto_start,optional"`
}

// DefaultConfig is what runs when no config file exists: one 5/10 table.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:               "localhost",
			Port:                  8080,
			LogLevel:              "info",
			WalletPath:            "wallet.db",
			ActionTimeoutSeconds:  30,
			InterHandDelaySeconds: 5,
		},
		Tables: []TableConfig{
			{
				Name:       "main",
				MaxSeats:   6,
				SmallBlind: 5,
				BigBlind:   10,
				BuyInMin:   500,
				BuyInMax:   5000,
				AutoStart:  true,
			},
		},
	}
}

// LoadConfig loads the configuration from an HCL file, falling back to
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing config file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding config: %s", diags.Error())
	}

	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.WalletPath == "" {
		config.Server.WalletPath = "wallet.db"
	}
	if config.Server.ActionTimeoutSeconds == 0 {
		config.Server.ActionTimeoutSeconds = 30
	}
	if config.Server.InterHandDelaySeconds == 0 {
		config.Server.InterHandDelaySeconds = 5
	}

	for i := range config.Tables {
		t := &config.Tables[i]
		if t.MaxSeats == 0 {
			t.MaxSeats = 6
		}
		if t.BuyInMin == 0 {
			t.BuyInMin = t.BigBlind * 50
		}
		if t.BuyInMax == 0 {
			t.BuyInMax = t.BigBlind * 500
		}
	}

	return &config, nil
}

// Validate rejects configurations that would stand up broken tables.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}

	for _, t := range c.Tables {
		if t.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", t.Name)
		}
		if t.BigBlind <= t.SmallBlind {
			return fmt.Errorf("table %s: big blind must be greater than small blind", t.Name)
		}
		if t.MaxSeats < 2 || t.MaxSeats > 10 {
			return fmt.Errorf("table %s: max seats must be between 2 and 10", t.Name)
		}
		if t.BuyInMin >= t.BuyInMax {
			return fmt.Errorf("table %s: buy-in minimum must be less than maximum", t.Name)
		}
		if t.BuyInMin < t.BigBlind {
			return fmt.Errorf("table %s: buy-in minimum must cover the big blind", t.Name)
		}
	}
	return nil
}

// GameConfig converts the HCL table block into the engine's table config.
func (t TableConfig) GameConfig() game.TableConfig {
	return game.TableConfig{
		Name:       t.Name,
		MaxSeats:   t.MaxSeats,
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
		MinBuyIn:   t.BuyInMin,
		MaxBuyIn:   t.BuyInMax,
		AutoStart:  t.AutoStart,
	}
}

// OnDemandTable is the shape of tables created implicitly when a client
// claims a seat without naming a table.
func (c *Config) OnDemandTable() game.TableConfig {
	tc := DefaultConfig().Tables[0].GameConfig()
	tc.Name = "on-demand"
	return tc
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// ActionTimeout returns the per-turn deadline.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Server.ActionTimeoutSeconds) * time.Second
}

// InterHandDelay returns the pause between hands.
func (c *Config) InterHandDelay() time.Duration {
	return time.Duration(c.Server.InterHandDelaySeconds) * time.Second
}
