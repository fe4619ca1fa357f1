package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.ListenAddress)
	require.Equal(t, uint64(50), cfg.Risk.LiquidationThreshold)
	require.Equal(t, uint64(10), cfg.Risk.LiquidationBonus)
}

func TestLoadParsesCollateralEntries(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = "0.0.0.0:9000"
DataDir = "/var/lib/stablecore"

[risk]
LiquidationThreshold = 60
LiquidationBonus = 5

[[collateral]]
Symbol = "weth"
Asset = "0x000000000000000000000000000000000000aaaa"
Feed = "manual"
Price = "2000"

[[collateral]]
Symbol = "WBTC"
Asset = "0x000000000000000000000000000000000000bbbb"
Feed = "http"
AssetID = "bitcoin"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Equal(t, uint64(60), cfg.Risk.LiquidationThreshold)
	require.Len(t, cfg.Collateral, 2)

	// Symbols normalise to upper case and decimals default to 8.
	require.Equal(t, "WETH", cfg.Collateral[0].Symbol)
	require.Equal(t, uint8(8), cfg.Collateral[0].Decimals)
	require.Equal(t, "manual", cfg.Collateral[0].Feed)
	require.Equal(t, "http", cfg.Collateral[1].Feed)
	require.Equal(t, "bitcoin", cfg.Collateral[1].AssetID)
}

func TestValidateRejectsBadRiskParameters(t *testing.T) {
	cfg := Default()
	cfg.Risk.LiquidationThreshold = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Risk.LiquidationThreshold = 101
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Risk.LiquidationBonus = 101
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCollateral(t *testing.T) {
	cfg := Default()
	cfg.Collateral = []CollateralConfig{{Symbol: "WETH", Asset: "not-an-address"}}
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Collateral = []CollateralConfig{
		{Symbol: "A", Asset: "0x000000000000000000000000000000000000aaaa"},
		{Symbol: "B", Asset: "0x000000000000000000000000000000000000AAAA"},
	}
	require.Error(t, cfg.Validate(), "duplicate assets must be rejected regardless of case")

	cfg = Default()
	cfg.Collateral = []CollateralConfig{{Symbol: "WETH", Asset: "0x000000000000000000000000000000000000aaaa", Feed: "chainlink"}}
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Collateral = []CollateralConfig{{Symbol: "WETH", Asset: "0x000000000000000000000000000000000000aaaa", Feed: "http"}}
	require.Error(t, cfg.Validate(), "http feed requires AssetID")
}
