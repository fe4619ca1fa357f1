package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures the runtime configuration for the stablecore daemon.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`

	Risk       RiskConfig         `toml:"risk"`
	Collateral []CollateralConfig `toml:"collateral"`
}

// RiskConfig holds the protocol safety parameters, expressed over a precision
// of 100.
type RiskConfig struct {
	LiquidationThreshold uint64 `toml:"LiquidationThreshold"`
	LiquidationBonus     uint64 `toml:"LiquidationBonus"`
}

// CollateralConfig describes one approved collateral asset and its price feed.
type CollateralConfig struct {
	Symbol   string `toml:"Symbol"`
	Asset    string `toml:"Asset"`
	Feed     string `toml:"Feed"`
	Decimals uint8  `toml:"Decimals"`
	// Price seeds a manual feed with an initial decimal quote, e.g. "2000".
	Price string `toml:"Price"`
	// Endpoint and AssetID configure an http feed.
	Endpoint string `toml:"Endpoint"`
	AssetID  string `toml:"AssetID"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./data",
		NetworkName:   "stablecore-local",
		LogMaxSizeMB:  100,
		Risk: RiskConfig{
			LiquidationThreshold: 50,
			LiquidationBonus:     10,
		},
	}
}

// Load reads the configuration from the given path, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if c.Risk.LiquidationThreshold == 0 || c.Risk.LiquidationThreshold > 100 {
		return fmt.Errorf("config: LiquidationThreshold must be in (0, 100]")
	}
	if c.Risk.LiquidationBonus > 100 {
		return fmt.Errorf("config: LiquidationBonus must be at most 100")
	}
	seen := make(map[common.Address]struct{}, len(c.Collateral))
	for i := range c.Collateral {
		entry := &c.Collateral[i]
		entry.Symbol = strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if entry.Symbol == "" {
			return fmt.Errorf("config: collateral %d missing Symbol", i)
		}
		if !common.IsHexAddress(entry.Asset) {
			return fmt.Errorf("config: collateral %s has invalid Asset address %q", entry.Symbol, entry.Asset)
		}
		addr := common.HexToAddress(entry.Asset)
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("config: duplicate collateral asset %s", entry.Asset)
		}
		seen[addr] = struct{}{}
		entry.Feed = strings.ToLower(strings.TrimSpace(entry.Feed))
		if entry.Feed == "" {
			entry.Feed = "manual"
		}
		if entry.Feed != "manual" && entry.Feed != "http" {
			return fmt.Errorf("config: collateral %s has unsupported Feed %q", entry.Symbol, entry.Feed)
		}
		if entry.Decimals == 0 {
			entry.Decimals = 8
		}
		if entry.Feed == "http" && strings.TrimSpace(entry.AssetID) == "" {
			return fmt.Errorf("config: collateral %s requires AssetID for http feed", entry.Symbol)
		}
	}
	return nil
}

// AssetAddress returns the parsed collateral asset address.
func (c CollateralConfig) AssetAddress() common.Address {
	return common.HexToAddress(c.Asset)
}
