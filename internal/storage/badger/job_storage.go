package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db           *BadgerDB
	eventService interfaces.EventService
	logger       arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance. The event service is
// used to announce authoritative completion; it may be nil in tests that
// do not care about notifications.
func NewJobStorage(db *BadgerDB, eventService interfaces.EventService, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:           db,
		eventService: eventService,
		logger:       logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.AnalysisJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob returns the job record, or nil when no such job exists
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.AnalysisJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.ClientID != "" {
			query = query.And("ClientID").Eq(opts.ClientID).Index("ClientID")
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// MarkJobComplete persists the authoritative completion flag and result
// payload. Idempotent: a job already complete is returned unchanged and no
// event is emitted for the repeat call.
func (s *JobStorage) MarkJobComplete(ctx context.Context, jobID string, result *models.Interpretation) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if job.BackendComplete {
		return &job, nil
	}

	job.MarkComplete(result)
	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to mark job complete: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("client_id", job.ClientID).
		Msg("Job marked complete")

	if s.eventService != nil {
		err := s.eventService.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobUpdated,
			Payload: models.NewJobUpdateEvent(&job),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish job update")
		}
	}

	return &job, nil
}

func (s *JobStorage) GetIncompleteJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("BackendComplete").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to find incomplete jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.AnalysisJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if s.eventService != nil {
		_ = s.eventService.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobRemoved,
			Payload: jobID,
		})
	}
	return nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.AnalysisJob{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}
