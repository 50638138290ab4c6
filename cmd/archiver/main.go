package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/db"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/services"
	"github.com/audit-ledger/backend/internal/storage"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	coldStore := storage.NewS3ColdStore(cfg, log)
	archiveService := services.NewArchiveService(coldStore, cfg, log)

	consumer := events.NewStreamConsumer(rdb, cfg.ExpiryStream, cfg.ConsumerGroup, cfg.ConsumerName, log)
	if err := consumer.EnsureGroup(ctx); err != nil {
		log.Fatal("failed to create consumer group", zap.Error(err))
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down archiver")
		cancel()
	}()

	log.Info("archiver started",
		zap.String("stream", cfg.ExpiryStream),
		zap.String("bucket", cfg.S3Bucket),
	)

	for ctx.Err() == nil {
		runOnce(ctx, consumer, archiveService, cfg, log)
	}
}

// runOnce consumes one batch of expiry notifications. There is no
// dead-letter path here: by the time a notification exists the hot row
// is gone, so dropping it would lose the entry forever. Failures stay
// pending and are reclaimed for another attempt, indefinitely.
func runOnce(ctx context.Context, consumer *events.StreamConsumer, svc *services.ArchiveService, cfg *config.Config, log *zap.Logger) {
	msgs, err := consumer.Read(ctx, int64(cfg.BatchSize), 5*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("expiry stream read failed", zap.Error(err))
		time.Sleep(time.Second)
		return
	}

	claimed, err := consumer.Pending(ctx, cfg.ClaimMinIdle, int64(cfg.BatchSize))
	if err != nil && ctx.Err() == nil {
		log.Error("pending reclaim failed", zap.Error(err))
	}
	msgs = append(msgs, claimed...)

	for _, m := range msgs {
		var n events.ExpiryNotification
		if err := json.Unmarshal(m.Body, &n); err != nil {
			// Left pending on purpose: an unreadable notification still
			// represents an entry we must not lose.
			log.Error("unreadable expiry notification, retention at risk",
				zap.String("message_id", m.ID),
				zap.Int64("deliveries", m.Deliveries),
				zap.Error(err),
			)
			continue
		}

		if err := svc.OnExpiryNotification(ctx, n, m.Deliveries); err != nil {
			continue // stays pending, reclaimed later
		}

		if err := consumer.Ack(ctx, m.ID); err != nil {
			log.Error("ack failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}
