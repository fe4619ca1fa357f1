package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/config"
	"stablecore/core/events"
	"stablecore/crypto"
	"stablecore/native/collateral"
	"stablecore/native/oracle"
	"stablecore/observability/logging"
	"stablecore/rpc"
	"stablecore/storage"
	"stablecore/token"
)

const envName = "STABLECORE_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logger *slog.Logger
	if strings.TrimSpace(cfg.LogFile) != "" {
		logger = logging.SetupWithRotation("stablecored", env, cfg.LogFile, cfg.LogMaxSizeMB)
	} else {
		logger = logging.Setup("stablecored", env)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("Failed to build collateral registry", slog.Any("error", err))
		os.Exit(1)
	}

	moduleAddr := crypto.ModuleAddress("collateral")
	bank := token.NewBank(moduleAddr)

	engine := collateral.NewEngine(registry, moduleAddr, collateral.RiskParameters{
		LiquidationThreshold: cfg.Risk.LiquidationThreshold,
		LiquidationBonus:     cfg.Risk.LiquidationBonus,
	})
	engine.SetDebtToken(bank.Debt())
	engine.SetCollateralBank(bank.Collateral())
	engine.SetEmitter(&logEmitter{logger: logger})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to prepare data directory", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := storage.NewPositionStore(filepath.Join(cfg.DataDir, "positions.db"), nil)
	if err != nil {
		logger.Error("Failed to open position store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	restored := 0
	if err := store.ForEach(func(user crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error {
		if err := engine.ImportPosition(user, deposits, debt); err != nil {
			return err
		}
		restored++
		return nil
	}); err != nil {
		logger.Error("Failed to restore positions", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("restored persisted positions",
		slog.Int("count", restored),
		slog.String("network", cfg.NetworkName))

	server := rpc.NewServer(engine, logger)
	server.SetStore(store)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildRegistry translates the configured collateral list into an immutable
// asset registry, seeding manual feeds with their configured price.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*collateral.Registry, error) {
	assets := make([]common.Address, 0, len(cfg.Collateral))
	feeds := make([]oracle.PriceFeed, 0, len(cfg.Collateral))
	for _, entry := range cfg.Collateral {
		var feed oracle.PriceFeed
		switch entry.Feed {
		case "http":
			feed = oracle.NewHTTPFeed(nil, entry.Endpoint, entry.AssetID, "usd", entry.Decimals)
		default:
			manual := oracle.NewManualFeed(entry.Symbol, entry.Decimals)
			if strings.TrimSpace(entry.Price) != "" {
				if err := manual.SetDecimal(entry.Price, time.Now().UTC()); err != nil {
					return nil, fmt.Errorf("seed price for %s: %w", entry.Symbol, err)
				}
			}
			feed = manual
		}
		logger.Info("registered collateral asset",
			slog.String("symbol", entry.Symbol),
			slog.String("asset", entry.AssetAddress().Hex()),
			slog.String("feed", entry.Feed))
		assets = append(assets, entry.AssetAddress())
		feeds = append(feeds, feed)
	}
	return collateral.NewRegistry(assets, feeds)
}

// logEmitter surfaces committed engine events on the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	l.logger.Info("engine event",
		slog.String("type", evt.EventType()),
		slog.Any("event", evt))
}
