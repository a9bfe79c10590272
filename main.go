package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/api"
	"fvg-liquidity-bot/internal/binance"
	"fvg-liquidity-bot/internal/cache"
	"fvg-liquidity-bot/internal/database"
	"fvg-liquidity-bot/internal/engine"
	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/execution"
	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/market"
	"fvg-liquidity-bot/internal/risk"
	"fvg-liquidity-bot/internal/vault"
)

const initialEquity = 1000.0

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	manager := config.NewManager(cfg)

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	infraLog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional infrastructure: database, redis, vault
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, infraLog.With().Str("component", "database").Logger())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	var candleCache *cache.CandleCache
	if cfg.RedisConfig.Enabled {
		candleCache, err = cache.New(cache.Config{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		}, infraLog.With().Str("component", "cache").Logger())
		if err != nil {
			logger.Warn("Redis unavailable, candle cache disabled", "error", err)
			candleCache = nil
		} else {
			defer candleCache.Close()
		}
	}

	apiKey, secretKey := cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			log.Fatalf("Failed to create vault client: %v", err)
		}
		creds, err := vaultClient.GetCredentials(ctx)
		if err != nil {
			log.Fatalf("Failed to read credentials from vault: %v", err)
		}
		apiKey, secretKey = creds.APIKey, creds.SecretKey
		logger.Info("Exchange credentials loaded from Vault")
	}

	// Exchange client: real or mock
	var exchange binance.Exchange
	if cfg.BinanceConfig.MockMode {
		exchange = binance.NewMockClient()
		logger.Info("Using mock exchange client")
	} else {
		exchange = binance.NewClient(apiKey, secretKey, cfg.BinanceConfig.BaseURL)
	}

	// Core pipeline
	store := market.NewStore(cfg.EngineConfig.CandleLimit * 2)

	// Live kline stream feeds closed bars into the store between REST cycles.
	if !cfg.BinanceConfig.MockMode {
		stream := binance.NewKlineStream(cfg.BinanceConfig.WSBaseURL, cfg.EngineConfig.Symbols,
			cfg.ConfluenceConfig.Timeframes[0],
			func(symbol, interval string, candle market.Candle) {
				if err := store.Append(symbol, interval, []market.Candle{candle}); err != nil {
					logger.Debug("stream candle dropped", "symbol", symbol, "error", err)
				}
			}, logger)
		go stream.Run(ctx)
	}

	gate := risk.NewGate(cfg.RiskConfig, initialEquity)
	executor := execution.NewExecutor(exchange, gate, eventBus, tradeStore(db), logger, cfg.EngineConfig.DryRun)
	eng := engine.New(manager, store, exchange, gate, executor, eventBus, candleCache, db, logger)

	// Control API
	if cfg.ServerConfig.Enabled {
		server := api.NewServer(cfg.ServerConfig, manager, eng, gate, executor, eventBus, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("API server failed", "error", err)
			}
		}()
	}

	// Shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Shutdown signal received", "signal", sig.String())
		eng.Stop()
		cancel()
	}()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("Engine stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// tradeStore adapts the nilable *database.DB to the executor's interface.
// A typed nil pointer inside a non-nil interface would defeat the executor's
// nil check.
func tradeStore(db *database.DB) execution.TradeStore {
	if db == nil {
		return nil
	}
	return db
}
