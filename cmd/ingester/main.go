package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/db"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/repositories"
	"github.com/audit-ledger/backend/internal/services"
	"github.com/audit-ledger/backend/internal/signing"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PGMaxConns, cfg.PGMinConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	auditRepo := repositories.NewAuditRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	secretClient := services.NewSecretStoreClient(cfg.SecretStoreURL, cfg.SigningSecretName, log)
	secretCache := signing.NewSecretCache(secretClient)
	ingestService := services.NewIngestService(auditRepo, secretCache, publisher, cfg, log)

	consumer := events.NewStreamConsumer(rdb, cfg.IngestStream, cfg.ConsumerGroup, cfg.ConsumerName, log)
	if err := consumer.EnsureGroup(ctx); err != nil {
		log.Fatal("failed to create consumer group", zap.Error(err))
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down ingester")
		cancel()
	}()

	log.Info("ingester started",
		zap.String("stream", cfg.IngestStream),
		zap.String("group", cfg.ConsumerGroup),
		zap.String("consumer", cfg.ConsumerName),
	)

	for ctx.Err() == nil {
		runOnce(ctx, consumer, ingestService, cfg, log)
	}
}

// runOnce drains one batch: freshly delivered messages plus any stale
// pending ones reclaimed from dead consumers. Messages past the
// delivery budget go to the dead-letter stream; everything else is
// processed and acked unless it failed on infrastructure.
func runOnce(ctx context.Context, consumer *events.StreamConsumer, svc *services.IngestService, cfg *config.Config, log *zap.Logger) {
	msgs, err := consumer.Read(ctx, int64(cfg.BatchSize), 5*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("stream read failed", zap.Error(err))
		time.Sleep(time.Second)
		return
	}

	claimed, err := consumer.Pending(ctx, cfg.ClaimMinIdle, int64(cfg.BatchSize))
	if err != nil && ctx.Err() == nil {
		log.Error("pending reclaim failed", zap.Error(err))
	}
	for _, m := range claimed {
		if m.Deliveries > int64(cfg.IngestMaxDeliveries) {
			if err := consumer.DeadLetter(ctx, cfg.DeadLetterStream, m); err != nil {
				log.Error("dead-letter failed", zap.String("message_id", m.ID), zap.Error(err))
			}
			continue
		}
		msgs = append(msgs, m)
	}

	if len(msgs) == 0 {
		return
	}

	result := svc.ProcessBatch(ctx, msgs)

	failed := make(map[string]bool, len(result.FailedMessageIDs))
	for _, id := range result.FailedMessageIDs {
		failed[id] = true
	}

	var ackIDs []string
	for _, m := range msgs {
		if !failed[m.ID] {
			ackIDs = append(ackIDs, m.ID)
		}
	}
	if err := consumer.Ack(ctx, ackIDs...); err != nil {
		// Unacked messages are redelivered; dedup makes that harmless.
		log.Error("ack failed", zap.Error(err))
	}
}
