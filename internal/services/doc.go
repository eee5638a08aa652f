// Package services defines the [JobAPI] interface for the remote rule migration service and implements it over HTTP.
//
// # JobAPI
//
// The orchestrator only talks to the service through [JobAPI], so tests substitute in-memory fakes.
//
// # HTTP Implementation
//
// [MigrationService] speaks JSON to a Kibana-compatible API:
//
//	POST {space}/internal/siem_migrations/rules             create, seeded with the first chunk
//	POST {space}/internal/siem_migrations/rules/{id}/rules  append a chunk
//	POST {space}/internal/siem_migrations/rules/{id}/start  start or resume
//	POST {space}/internal/siem_migrations/rules/{id}/stop   stop
//	GET  {space}/internal/siem_migrations/rules/stats       list all migration stats
//
// {space} is empty for the default space and "/s/<id>" otherwise.
//
// Requests are authenticated with an API key sent as "Authorization: ApiKey <key>", set by an
// [oauth2.Transport] wrapping a static token source.
//
// # Error Handling
//
// Every failure wraps [shared.ErrAPIRequest]:
//   - transport failures (connection refused, canceled context)
//   - non-2xx responses, returned as [*APIError] carrying the status code and message
//   - undecodable response bodies
//
// A 404 [*APIError] additionally matches [shared.ErrMigrationNotFound].
package services
