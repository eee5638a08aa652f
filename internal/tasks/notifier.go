package tasks

import (
	"github.com/desertthunder/rulemig/internal/models"
)

func finishedNotification(s models.JobStats) models.Notification {
	return models.Notification{
		Kind:      models.NotifyMigrationFinished,
		JobID:     s.ID,
		JobNumber: s.Number,
		JobName:   s.Name,
	}
}

func missingCapabilitiesNotification(s models.JobStats, missing []string) models.Notification {
	return models.Notification{
		Kind:                models.NotifyMissingCapabilities,
		JobID:               s.ID,
		JobNumber:           s.Number,
		JobName:             s.Name,
		MissingCapabilities: missing,
	}
}

func missingConnectorNotification(s models.JobStats) models.Notification {
	return models.Notification{
		Kind:      models.NotifyMissingConnector,
		JobID:     s.ID,
		JobNumber: s.Number,
		JobName:   s.Name,
	}
}

func telemetryEvent(t models.TelemetryEventType, spaceID, jobID string, attrs map[string]any) models.TelemetryEvent {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return models.TelemetryEvent{Type: t, MigrationID: jobID, SpaceID: spaceID, Attributes: attrs}
}
