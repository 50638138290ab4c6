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

	// Repos
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	streamPublisher := events.NewStreamPublisher(rdb, log)
	publisher := events.NewRedisPublisher(rdb, log)
	secretClient := services.NewSecretStoreClient(cfg.SecretStoreURL, cfg.SigningSecretName, log)
	secretCache := signing.NewSecretCache(secretClient)
	sweeper := services.NewSweeperService(auditRepo, streamPublisher, cfg, log)
	verifier := services.NewVerifyService(auditRepo, secretCache, publisher, log)

	log.Info("worker started")

	// Run jobs on tickers
	sweepTicker := time.NewTicker(cfg.SweepInterval)
	verifyTicker := time.NewTicker(cfg.VerifyInterval)
	defer sweepTicker.Stop()
	defer verifyTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			runSweep(ctx, sweeper, log)
		case <-verifyTicker.C:
			runVerify(ctx, verifier, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runSweep(ctx context.Context, sweeper *services.SweeperService, log *zap.Logger) {
	// Keep sweeping full batches until the backlog is drained.
	for {
		swept, err := sweeper.SweepExpired(ctx)
		if err != nil {
			log.Error("expiry sweep failed", zap.Error(err))
			return
		}
		if swept == 0 {
			return
		}
	}
}

func runVerify(ctx context.Context, verifier *services.VerifyService, log *zap.Logger) {
	reports, err := verifier.VerifyAll(ctx)
	if err != nil {
		log.Error("chain verification sweep failed", zap.Error(err))
		return
	}
	for _, r := range reports {
		if !r.Valid {
			log.Error("broken audit chain detected",
				zap.String("org_id", r.OrgID),
				zap.Int("broken_at", r.BrokenAt),
			)
		}
	}
}
