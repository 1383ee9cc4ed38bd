// Package main is the entry point for the fundraising escrow daemon.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/bot"
	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/events"
	"fundraising-escrow/internal/httpapi"
	"fundraising-escrow/internal/keeper"
	"fundraising-escrow/internal/metrics"
	"fundraising-escrow/internal/pkg/db"
	"fundraising-escrow/internal/pkg/lock"
	"fundraising-escrow/internal/repository"
	"fundraising-escrow/internal/service"
	"fundraising-escrow/internal/settlement"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()
	if err := metrics.RegisterPool(prometheus.DefaultRegisterer, dbPool.Snapshot); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pool metrics")
	}

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	st := repository.NewPostgresStore(dbPool.Pool)
	locks := lock.NewKeyLock()
	dispatcher := events.NewDispatcher(events.LogSink{})

	var limiter httpapi.Counter
	if rdb := events.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); rdb != nil {
		defer rdb.Close()
		dispatcher.Add(events.NewRedisSink(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen))
		limiter = rdb
	}

	rooms := service.NewRoomService(st, locks, settlement.NewEngine(nil), dispatcher, service.SystemClock{})
	platform := service.NewPlatformService(st, locks, dispatcher, service.SystemClock{})
	ledger := service.NewLedgerService(st, locks, service.SystemClock{})

	if _, err := platform.Bootstrap(ctx, cfg.Platform.Seed()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize platform")
	}

	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(&bot.Dependencies{Config: cfg, Rooms: rooms, Platform: platform})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		dispatcher.Add(telegramBot.Notifier())
		go telegramBot.Start()
	}

	var k *keeper.Keeper
	if cfg.Keeper.Enabled {
		k = keeper.New(cfg.Keeper, rooms)
		if err := k.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start keeper")
		}
	}

	srv := httpapi.New(cfg.HTTP, httpapi.Services{Rooms: rooms, Platform: platform, Ledger: ledger, Health: dbPool}, limiter)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("HTTP server stopped with error")
	}

	log.Info().Msg("Shutting down...")
	if k != nil {
		if err := k.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop keeper")
		}
	}
	if telegramBot != nil {
		telegramBot.Stop()
	}
	log.Info().Msg("Escrow daemon stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
