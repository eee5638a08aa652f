package tasks

import (
	"encoding/json"
	"strings"

	"github.com/desertthunder/rulemig/internal/models"
)

// Preference keys
const (
	PrefConnectorID    = "connector_id"
	PrefTracingOptions = "tracing_options"
	PrefSpaceID        = "space_id"
)

// Preferences is a typed, read-only view over a [PreferenceStore].
//
// A nil store behaves as an empty one.
type Preferences struct {
	store PreferenceStore
}

func NewPreferences(store PreferenceStore) Preferences {
	return Preferences{store: store}
}

func (p Preferences) get(key string) (string, bool) {
	if p.store == nil {
		return "", false
	}
	v, ok := p.store.Get(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// ConnectorID returns the last selected execution connector.
func (p Preferences) ConnectorID() (string, bool) {
	return p.get(PrefConnectorID)
}

// SpaceID returns the last selected space.
func (p Preferences) SpaceID() (string, bool) {
	return p.get(PrefSpaceID)
}

// TracingOptions decodes the stored tracing options.
//
// Returns nil unless a decodable value carrying an API key is stored.
func (p Preferences) TracingOptions() *models.TracingOptions {
	raw, ok := p.get(PrefTracingOptions)
	if !ok {
		return nil
	}
	var opts models.TracingOptions
	if err := json.Unmarshal([]byte(raw), &opts); err != nil || opts.APIKey == "" {
		return nil
	}
	return &opts
}

// ResolveSpaceID returns the stored space, falling back to fallback and then "default".
func ResolveSpaceID(store PreferenceStore, fallback string) string {
	if id, ok := NewPreferences(store).SpaceID(); ok {
		return id
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return "default"
}
