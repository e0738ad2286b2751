package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/api"
	"breakout-trading-bot/internal/auth"
	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/bot"
	"breakout-trading-bot/internal/candles"
	"breakout-trading-bot/internal/clock"
	"breakout-trading-bot/internal/entry"
	"breakout-trading-bot/internal/events"
	"breakout-trading-bot/internal/history"
	"breakout-trading-bot/internal/ledger"
	"breakout-trading-bot/internal/market"
	"breakout-trading-bot/internal/risk"
	"breakout-trading-bot/internal/state"
	"breakout-trading-bot/internal/vault"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	genConfig := flag.Bool("gen-config", false, "write a sample config file and exit")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for the given password and exit")
	noAutostart := flag.Bool("no-autostart", false, "start the API only; launch trading via POST /api/bot/start")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample config written to %s\n", *configPath)
		return
	}
	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Str("config", *configPath).Msg("starting breakout trading bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	clk := clock.New()

	// Exchange credentials: Vault when enabled, config otherwise.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("vault client init failed")
	}
	creds, err := vaultClient.GetCredentials(ctx, vault.Credentials{
		APIKey:    cfg.BinanceConfig.APIKey,
		SecretKey: cfg.BinanceConfig.SecretKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("credential fetch failed")
	}

	var gateway binance.Gateway
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("mock mode enabled, no real orders will be placed")
		gateway = binance.NewMockClient()
	} else {
		gateway = binance.NewClient(creds.APIKey, creds.SecretKey, cfg.BinanceConfig.BaseURL, logger)
	}
	gateway = binance.NewRetryGateway(gateway, logger)

	// State persistence: file store always, Redis layered on top.
	fileStore, err := state.NewFileStore(cfg.StateConfig.Dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("state dir init failed")
	}
	var tradeStore ledger.Store = fileStore
	var cooldownStore state.CooldownPersister = fileStore
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		redisStore := state.NewRedisStore(rdb, fileStore, logger)
		tradeStore = redisStore
		cooldownStore = redisStore
	}

	// Trade history: Postgres when configured, JSON file otherwise.
	var histStore history.Store
	if cfg.DatabaseConfig.Enabled {
		pg, err := history.NewPostgresStore(ctx, cfg.DatabaseConfig.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("history database init failed")
		}
		histStore = pg
	} else {
		fs, err := history.NewFileStore(cfg.StateConfig.HistoryFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("history file init failed")
		}
		histStore = fs
	}
	defer histStore.Close()

	engine := risk.NewEngine(risk.Config{
		StopLossPercent:     cfg.RiskConfig.StopLossPercent,
		TakeProfitPercent:   cfg.RiskConfig.TakeProfitPercent,
		TrailingStopPercent: cfg.RiskConfig.TrailingStopPercent,
		TimeExitEnabled:     cfg.RiskConfig.TimeExitEnabled,
		MaxTradeDuration:    time.Duration(cfg.RiskConfig.MaxTradeDurationMinutes) * time.Minute,
	})
	evaluator := entry.NewEvaluator(entry.Config{
		VolumeMultiplier:   cfg.StrategyConfig.VolumeMultiplier,
		VolumeTimeLimit:    cfg.StrategyConfig.VolumeTimeLimit,
		PriceChangePercent: cfg.StrategyConfig.PriceChangePercent,
	})
	scanner := market.NewScanner(gateway, cfg.StrategyConfig.QuoteCurrency, logger)
	tracker := candles.NewTracker(gateway, clk, logger)
	led := ledger.New(gateway, engine, tradeStore, clk, cfg.StrategyConfig.QuoteCurrency, logger)
	cooldowns := state.NewRegistry(cooldownStore, clk, time.Duration(cfg.StrategyConfig.CooldownMinutes)*time.Minute, logger)

	tradingBot := bot.New(gateway, scanner, tracker, evaluator, engine, led, cooldowns, histStore, eventBus, clk, cfg, *configPath, logger)

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(
			cfg.AuthConfig.JWTSecret,
			cfg.AuthConfig.Username,
			cfg.AuthConfig.PasswordHash,
			cfg.AuthConfig.TokenDuration,
		)
		logger.Info().Msg("dashboard authentication enabled")
	}

	server := api.NewServer(cfg.ServerConfig, eventBus, tradingBot, authService, logger)

	if !*noAutostart {
		if err := tradingBot.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("bot start failed")
		}
	}

	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}

	// The signal context is done; close any open position before exit.
	if tradingBot.Running() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := tradingBot.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("bot stop failed")
		}
		cancel()
	}
	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out *os.File
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}

	if cfg.JSONFormat {
		return zerolog.New(out).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()
}
