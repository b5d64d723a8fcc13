package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// JobListOptions filters and pages job listings
type JobListOptions struct {
	ClientID string
	Limit    int
	Offset   int
}

// JobStorage - interface for analysis job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.AnalysisJob, error)

	// MarkJobComplete sets the authoritative completion flag and attaches the
	// result payload. Idempotent: repeated calls leave the record unchanged.
	// Emits EventJobUpdated on the event bus after a state change.
	MarkJobComplete(ctx context.Context, jobID string, result *models.Interpretation) (*models.AnalysisJob, error)

	// GetIncompleteJobs returns jobs whose authoritative flag is still false
	GetIncompleteJobs(ctx context.Context) ([]*models.AnalysisJob, error)

	DeleteJob(ctx context.Context, jobID string) error
	CountJobs(ctx context.Context) (int, error)
}

// ClientStorage - interface for client record persistence
type ClientStorage interface {
	SaveClient(ctx context.Context, client *models.ClientRecord) error
	GetClient(ctx context.Context, clientID string) (*models.ClientRecord, error)
	ListClients(ctx context.Context) ([]*models.ClientRecord, error)
	DeleteClient(ctx context.Context, clientID string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	ClientStorage() ClientStorage
	Close() error
}
