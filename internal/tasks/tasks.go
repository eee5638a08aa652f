// package tasks orchestrates rule migrations against the remote migration service.
//
// The core abstraction is [Orchestrator], which submits rules through a [Batcher], starts and resumes
// migrations, and runs the poll loop that publishes [Snapshot] values through a [Publisher].
package tasks

import (
	"context"

	"github.com/desertthunder/rulemig/internal/models"
)

// JobCreator is the subset of [services.JobAPI] the [Batcher] needs.
type JobCreator interface {
	CreateJob(ctx context.Context, chunk []models.RuleDescriptor) (string, error)
	AddToJob(ctx context.Context, jobID string, chunk []models.RuleDescriptor) error
}

// PreferenceStore is read access to persisted user preferences.
type PreferenceStore interface {
	Get(key string) (string, bool)
}

// NotificationSink renders orchestrator notifications to the user.
type NotificationSink interface {
	Notify(n models.Notification)
}

// TelemetrySink receives fire-and-forget usage events.
type TelemetrySink interface {
	Report(e models.TelemetryEvent)
}

// CapabilitySource reports the capabilities currently granted to the caller.
type CapabilitySource interface {
	Granted() []string
}

// StaticCapabilities is a fixed set of granted capabilities.
type StaticCapabilities []string

func (s StaticCapabilities) Granted() []string { return s }

// NotifierFunc adapts a function to [NotificationSink].
type NotifierFunc func(models.Notification)

func (f NotifierFunc) Notify(n models.Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(models.Notification) {}

type nopTelemetry struct{}

func (nopTelemetry) Report(models.TelemetryEvent) {}
