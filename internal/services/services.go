// package services defines interface JobAPI for interacting with the remote rule migration service
package services

import (
	"context"

	"github.com/desertthunder/rulemig/internal/models"
)

// JobAPI defines the remote operations the orchestrator issues against the migration service.
type JobAPI interface {
	// CreateJob creates a migration seeded with the first chunk of rules and returns its id.
	CreateJob(ctx context.Context, chunk []models.RuleDescriptor) (string, error)

	// AddToJob appends a chunk of rules to an existing migration.
	AddToJob(ctx context.Context, jobID string, chunk []models.RuleDescriptor) error

	// StartJob starts (or resumes) a migration. Returns false when the service declined to start it.
	StartJob(ctx context.Context, req models.StartRequest) (bool, error)

	// StopJob asks the service to stop a running migration.
	StopJob(ctx context.Context, jobID string) (bool, error)

	// ListAllJobStats returns a snapshot of every migration in the space.
	ListAllJobStats(ctx context.Context) ([]models.Job, error)
}
