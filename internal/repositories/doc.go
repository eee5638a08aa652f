// Package repositories implements SQLite persistence for client-side state.
//
// Key Implementations:
//   - [PreferenceRepository] : key/value preferences (connector, tracing options, space)
//   - [TelemetryRepository] : append-only telemetry event log, usable as a fire-and-forget sink
//
// Sequence numbers provide stable, human-readable ordering of telemetry events independent of UUIDs and timestamps.
// Each insert derives its sequence from the current maximum of the table inside the same statement.
package repositories
