package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/database"
	"github.com/aristath/alphaledger/internal/modules/sizing"
	"github.com/aristath/alphaledger/internal/pipeline"
)

// PassJob runs one full pipeline pass on schedule.
type PassJob struct {
	pipeline *pipeline.Service
	timeout  time.Duration
	log      zerolog.Logger
}

// NewPassJob creates the scheduled pipeline pass job.
func NewPassJob(svc *pipeline.Service, timeout time.Duration, log zerolog.Logger) *PassJob {
	return &PassJob{
		pipeline: svc,
		timeout:  timeout,
		log:      log.With().Str("job", "pipeline_pass").Logger(),
	}
}

// Run executes one pass with a hard deadline.
func (j *PassJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.pipeline.RunPass(ctx)
	if err != nil {
		return err
	}
	j.log.Info().
		Str("pass_id", result.ID).
		Int("targets", len(result.Targets)).
		Msg("Scheduled pass finished")
	return nil
}

// Name returns the job name for scheduler
func (j *PassJob) Name() string {
	return "pipeline_pass"
}

// snapshotRetention is how long completed pass snapshots are kept.
const snapshotRetention = 90 * 24 * time.Hour

// MaintenanceJob performs daily housekeeping: expired cache entries,
// expired price blocks, old pass snapshots, and a WAL checkpoint on
// every database to keep the journals from growing unbounded.
type MaintenanceJob struct {
	databases  map[string]*database.DB
	cache      *clientdata.Repository
	exclusions *sizing.ExclusionList
	snapshots  *pipeline.SnapshotRepository
	log        zerolog.Logger
}

// NewMaintenanceJob creates the daily maintenance job.
func NewMaintenanceJob(
	databases map[string]*database.DB,
	cache *clientdata.Repository,
	exclusions *sizing.ExclusionList,
	snapshots *pipeline.SnapshotRepository,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases:  databases,
		cache:      cache,
		exclusions: exclusions,
		snapshots:  snapshots,
		log:        log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job. Individual steps log and
// continue on failure; maintenance never takes the system down.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	if removed, err := j.cache.CleanupExpired(); err != nil {
		j.log.Warn().Err(err).Msg("Cache cleanup failed")
	} else if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Removed expired cache entries")
	}

	if removed, err := j.exclusions.CleanupExpired(); err != nil {
		j.log.Warn().Err(err).Msg("Exclusion list cleanup failed")
	} else if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Removed expired price blocks")
	}

	if removed, err := j.snapshots.Prune(snapshotRetention); err != nil {
		j.log.Warn().Err(err).Msg("Snapshot pruning failed")
	} else if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Pruned old pass snapshots")
	}

	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().
				Str("database", name).
				Err(err).
				Msg("WAL checkpoint failed")
			// Not critical, continue with other databases
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")
	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "daily_maintenance"
}
