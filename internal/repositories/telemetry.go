package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
)

// TelemetryRecord is a persisted [models.TelemetryEvent].
type TelemetryRecord struct {
	ID       string
	Sequence int
	models.TelemetryEvent
}

// TelemetryRepository appends telemetry events to the telemetry_events table.
//
// It satisfies the orchestrator's telemetry sink: [TelemetryRepository.Report] never fails the caller.
type TelemetryRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// NewTelemetryRepository creates a new TelemetryRepository. A nil logger discards write failures.
func NewTelemetryRepository(db *sql.DB, logger *log.Logger) *TelemetryRepository {
	return &TelemetryRepository{db: db, logger: logger}
}

// Report records e, logging instead of returning any failure.
func (r *TelemetryRepository) Report(e models.TelemetryEvent) {
	if _, err := r.Record(e); err != nil && r.logger != nil {
		r.logger.Warn("failed to record telemetry event", "type", e.Type, "migration_id", e.MigrationID, "error", err)
	}
}

// Record inserts e with a generated ID and sequence and returns the stored record.
func (r *TelemetryRepository) Record(e models.TelemetryEvent) (*TelemetryRecord, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("%w: telemetry event type is required", shared.ErrInvalidInput)
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO telemetry_events (id, sequence, event_type, migration_id, space_id, attributes, created_at)
		VALUES (?, ` + nextSequence("telemetry_events") + `, ?, ?, ?, ?, ?)
		RETURNING sequence
	`
	var sequence int
	err = r.db.QueryRow(query, id, string(e.Type), nullable(e.MigrationID), nullable(e.SpaceID), string(attrs), e.Time.UTC()).Scan(&sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to insert telemetry event: %w", err)
	}

	return &TelemetryRecord{ID: id, Sequence: sequence, TelemetryEvent: e}, nil
}

// List returns up to limit of the most recent events, newest first. A non-positive limit returns all events.
func (r *TelemetryRepository) List(limit int) ([]TelemetryRecord, error) {
	query := `
		SELECT id, sequence, event_type, migration_id, space_id, attributes, created_at
		FROM telemetry_events
		ORDER BY sequence DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry events: %w", err)
	}
	defer rows.Close()

	records := []TelemetryRecord{}
	for rows.Next() {
		var (
			rec         TelemetryRecord
			eventType   string
			migrationID sql.NullString
			spaceID     sql.NullString
			attrs       string
		)
		if err := rows.Scan(&rec.ID, &rec.Sequence, &eventType, &migrationID, &spaceID, &attrs, &rec.Time); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry event: %w", err)
		}
		rec.Type = models.TelemetryEventType(eventType)
		rec.MigrationID = migrationID.String
		rec.SpaceID = spaceID.String
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telemetry events: %w", err)
	}
	return records, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
