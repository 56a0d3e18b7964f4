// Package scheduler runs AlphaLedger's recurring jobs on cron schedules:
// the daily pipeline pass, nightly maintenance, and the optional cloud
// backup. Schedules are 6-field cron expressions (seconds first).
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work. Jobs own their timeouts; the
// scheduler only sequences and observes them.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps the cron runner and keeps the registry of job names,
// so a name can only be scheduled once per process.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	log     zerolog.Logger
}

// New creates a scheduler. Seconds-resolution parsing matches the
// schedules in config (PASS_SCHEDULE and the fixed maintenance/backup
// crons).
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins dispatching scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Stop stops dispatching and waits for any running job to finish. Called
// during shutdown before the databases close.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job under the given 6-field cron schedule,
// e.g. "0 30 14 * * 1-5" for weekdays at 14:30:00.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %q is already scheduled", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", schedule, job.Name(), err)
	}
	s.entries[job.Name()] = id

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule. Used by the
// manual pass trigger on the ops API.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job on demand")
	return s.execute(job)
}

func (s *Scheduler) execute(job Job) error {
	started := time.Now()
	err := job.Run()
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("duration", time.Since(started)).
			Msg("Job failed")
		return err
	}
	s.log.Info().
		Str("job", job.Name()).
		Dur("duration", time.Since(started)).
		Msg("Job completed")
	return nil
}
