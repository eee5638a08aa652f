package models

import "time"

// NotificationKind is the category of a user-facing notification.
type NotificationKind int

const (
	NotifyMigrationFinished NotificationKind = iota
	NotifyMissingCapabilities
	NotifyMissingConnector
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyMigrationFinished:
		return "migration_finished"
	case NotifyMissingCapabilities:
		return "missing_capabilities"
	case NotifyMissingConnector:
		return "missing_connector"
	default:
		return ""
	}
}

// Notification is an orchestrator decision handed to a notification sink for rendering.
type Notification struct {
	Kind                NotificationKind
	JobID               string
	JobNumber           int      // 0 when the job is not tracked yet
	JobName             string
	MissingCapabilities []string // only for [NotifyMissingCapabilities]
}

// TelemetryEventType identifies a telemetry record.
type TelemetryEventType string

const (
	EventMigrationCreated TelemetryEventType = "migration_created"
	EventMigrationStarted TelemetryEventType = "migration_started"
	EventMigrationResumed TelemetryEventType = "migration_resumed"
	EventMigrationStopped TelemetryEventType = "migration_stopped"
)

// TelemetryEvent is a fire-and-forget usage record.
type TelemetryEvent struct {
	Type        TelemetryEventType
	MigrationID string
	SpaceID     string
	Attributes  map[string]any
	Time        time.Time
}
