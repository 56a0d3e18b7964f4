// Package main is the entry point for the AlphaLedger alternative-data
// trading system. It turns public disclosure data (congressional trades,
// insider filings, lobbying spend, government contracts) into portfolio
// targets on a schedule and executes the rebalance against a broker.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Scheduled pipeline for the daily pass
// - HTTP handlers for API endpoints
//
// The application uses a 3-database architecture:
// - altdata.db: Ingested disclosure data (congress, insider, lobbying, contracts)
// - client_data.db: Cache for price bars and reference data
// - cache.db: Ephemeral operational data (price blocks, pass snapshots)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/alphaledger/internal/config"
	"github.com/aristath/alphaledger/internal/di"
	"github.com/aristath/alphaledger/internal/reliability"
	"github.com/aristath/alphaledger/internal/scheduler"
	"github.com/aristath/alphaledger/internal/server"
	"github.com/aristath/alphaledger/pkg/logger"
)

const (
	passTimeout     = 15 * time.Minute
	backupTimeout   = 30 * time.Minute
	maintenanceCron = "0 0 2 * * *" // daily at 02:00
	backupCron      = "0 30 3 * * *"
	shutdownGrace   = 10 * time.Second
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("environment", cfg.Environment).
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting AlphaLedger")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	sched := scheduler.New(log)

	passJob := scheduler.NewPassJob(container.Pipeline, passTimeout, log)
	if err := sched.AddJob(cfg.PassSchedule, passJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.PassSchedule).Msg("Failed to schedule pipeline pass")
	}

	maintenanceJob := scheduler.NewMaintenanceJob(
		container.Databases(),
		container.CacheRepo,
		container.Exclusions,
		container.Snapshots,
		log,
	)
	if err := sched.AddJob(maintenanceCron, maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}

	// Cloud backup is opt-in: configured bucket turns it on.
	if cfg.BackupBucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:  cfg.BackupEndpoint,
			Region:    cfg.BackupRegion,
			Bucket:    cfg.BackupBucket,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupSvc := reliability.NewBackupService(s3Client, container.Databases(), cfg.DataDir, log)
		backupJob := reliability.NewBackupJob(backupSvc, cfg.BackupRetentionDays, backupTimeout, log)
		if err := sched.AddJob(backupCron, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule cloud backup")
		}
		log.Info().Str("bucket", cfg.BackupBucket).Msg("Cloud backup enabled")
	} else {
		log.Info().Msg("Cloud backup disabled (no bucket configured)")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Snapshots:  container.Snapshots,
		Exclusions: container.Exclusions,
		PassJob:    passJob,
		Scheduler:  sched,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
