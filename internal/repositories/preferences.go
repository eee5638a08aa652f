package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/rulemig/internal/shared"
)

// Preference is a stored key/value pair.
type Preference struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// PreferenceRepository persists user preferences in the preferences table.
type PreferenceRepository struct {
	db *sql.DB
}

// NewPreferenceRepository creates a new PreferenceRepository with the given database connection
func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the stored value for key.
//
// Missing keys and read failures both report ok=false; use [PreferenceRepository.Lookup] to tell them apart.
func (r *PreferenceRepository) Get(key string) (string, bool) {
	value, err := r.Lookup(key)
	if err != nil {
		return "", false
	}
	return value, true
}

// Lookup returns the stored value for key or [shared.ErrPreferenceNotFound].
func (r *PreferenceRepository) Lookup(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrPreferenceNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value for key.
func (r *PreferenceRepository) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: preference key is required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Exec(query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// Delete removes key, returning [shared.ErrPreferenceNotFound] when nothing was stored.
func (r *PreferenceRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM preferences WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPreferenceNotFound, key)
	}
	return nil
}

// List returns every stored preference ordered by key.
func (r *PreferenceRepository) List() ([]Preference, error) {
	rows, err := r.db.Query(`SELECT key, value, updated_at FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	prefs := []Preference{}
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}
	return prefs, nil
}
