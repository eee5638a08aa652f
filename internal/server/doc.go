// Package server exposes the orchestrator over HTTP for dashboards and scripts.
//
// # Routes
//
//	GET  /health                       liveness
//	GET  /api/migrations/stats         latest published snapshot
//	POST /api/migrations/refresh       refresh stats now
//	POST /api/migrations/{id}/start    start a migration
//	POST /api/migrations/{id}/stop     stop a migration
//	GET  /ws/stats                     websocket stream of snapshots
//
// Routing uses chi. Requests are tagged with chi's request ID middleware and logged by [RequestLogger].
//
// # Snapshot Stream
//
// Each websocket client holds one publisher subscription. It receives the current snapshot on
// connect (which may be the unknown snapshot) and then every newer one; a slow client skips
// intermediate snapshots. The stream ends when the client disconnects or the orchestrator closes.
//
// # Error Responses
//
// Errors are JSON objects of the form {"error": "..."} with these statuses:
//   - 404 : migration not found
//   - 400 : invalid or missing arguments
//   - 502 : the migration service call failed
package server
