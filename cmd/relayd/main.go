package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalice/ledger-engine/internal/core/services"
	"github.com/skalice/ledger-engine/internal/events/kafka"
	"github.com/skalice/ledger-engine/internal/repositories/cache/redisc"
	"github.com/skalice/ledger-engine/internal/repositories/database/pgsql"
	"github.com/skalice/ledger-engine/pkg/cache"
	"github.com/skalice/ledger-engine/pkg/config"
	"github.com/skalice/ledger-engine/pkg/database"
)

// relayd is the single-consumer worker that drains the transaction relay
// queue and applies each message through the optimistic balance updater.
// Scaling to multiple workers is safe: the version-conditioned write remains
// the sole arbiter of success.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("Failed to initialize Redis client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cache.CloseRedisClient(redisClient)

	ledgerRepo := pgsql.NewLedgerRepository(dbPool)
	snapshotCache := redisc.NewSnapshotCache(redisClient)
	ledgerService := services.NewLedgerService(ledgerRepo, snapshotCache, cfg.SnapshotTTL)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer func() {
		if cerr := consumer.Close(); cerr != nil {
			logger.Error("Error closing Kafka consumer", slog.String("error", cerr.Error()))
		}
	}()

	relayConsumer := services.NewRelayConsumer(consumer, ledgerService, logger, cfg.RelayMaxAttempts, cfg.RelayBackoff)

	logger.Info("Relay worker starting",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group_id", cfg.KafkaGroupID),
	)

	if err := relayConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Relay worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Relay worker shut down.")
}
