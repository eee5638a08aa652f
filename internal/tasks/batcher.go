package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is the maximum number of rules sent in one request.
const DefaultBatchSize = 50

// Batcher submits rules to a migration in sequential, size-bounded chunks.
type Batcher struct {
	api     JobCreator
	size    int
	limiter *rate.Limiter
}

// NewBatcher creates a Batcher. A non-positive size uses [DefaultBatchSize]; a non-positive
// requestsPerSecond disables pacing.
func NewBatcher(api JobCreator, size int, requestsPerSecond float64) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Batcher{api: api, size: size, limiter: rate.NewLimiter(limit, 1)}
}

// Size returns the batch limit.
func (b *Batcher) Size() int { return b.size }

// Submit sends rules and returns the migration id they were added to.
//
// Without a jobID the first chunk creates the migration and the rest are appended to it.
// With a jobID every chunk is appended. Chunks go out one at a time in input order; the first
// failure stops the submission and is returned along with the id, if one was obtained.
// Chunks already accepted stay on the migration.
func (b *Batcher) Submit(ctx context.Context, rules []models.RuleDescriptor, jobID string) (string, error) {
	if len(rules) == 0 {
		return "", shared.ErrEmptyInput
	}

	chunks := Chunk(rules, b.size)
	for i, chunk := range chunks {
		if err := b.limiter.Wait(ctx); err != nil {
			return jobID, fmt.Errorf("submission canceled at chunk %d/%d: %w", i+1, len(chunks), err)
		}

		if jobID == "" {
			id, err := b.api.CreateJob(ctx, chunk)
			if err != nil {
				return "", fmt.Errorf("failed to create migration: %w", err)
			}
			jobID = id
			continue
		}

		if err := b.api.AddToJob(ctx, jobID, chunk); err != nil {
			return jobID, fmt.Errorf("failed to add chunk %d/%d to migration %s: %w", i+1, len(chunks), jobID, err)
		}
	}
	return jobID, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
