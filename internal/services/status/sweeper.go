// -----------------------------------------------------------------------
// Sweeper - Periodic reconciliation against the authoritative job store
// -----------------------------------------------------------------------

package status

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Sweeper periodically re-reads the job store and feeds authoritative
// completion state back into the engine. The push channel is the primary
// path; the sweep exists so a lost update converges instead of leaving a
// job stuck in finalizing forever.
type Sweeper struct {
	engine     *Engine
	jobStorage interfaces.JobStorage
	cron       *cron.Cron
	logger     arbor.ILogger
	entryID    cron.EntryID
	running    bool
}

// NewSweeper creates a sweeper bound to an engine and job store
func NewSweeper(engine *Engine, jobStorage interfaces.JobStorage, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		engine:     engine,
		jobStorage: jobStorage,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start schedules the sweep using a cron expression ("@every 30s" style)
func (s *Sweeper) Start(schedule string) error {
	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	if schedule == "" {
		schedule = "@every 30s"
	}

	entryID, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", schedule).Msg("Status sweeper started")
	return nil
}

// Stop halts the sweep, waiting for an in-flight run to finish
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Status sweeper stopped")
}

// sweep re-fetches every tracked non-terminal job and re-observes it.
// Observe is idempotent, so jobs whose state did not change are no-ops;
// jobs whose completion update was missed converge to complete.
func (s *Sweeper) sweep() {
	stages := s.engine.Stages()

	checked := 0
	converged := 0
	for jobID, stage := range stages {
		if stage == models.StageComplete {
			continue
		}
		checked++

		job, err := s.jobStorage.GetJob(context.Background(), jobID)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Sweep could not fetch job")
			continue
		}
		if job == nil {
			// Deleted out from under the engine
			s.engine.Forget(jobID)
			continue
		}
		if job.BackendComplete {
			converged++
		}
		s.engine.Observe(job)
	}

	if checked > 0 {
		s.logger.Debug().
			Int("checked", checked).
			Int("converged", converged).
			Msg("Status sweep completed")
	}
}
