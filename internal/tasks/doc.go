// Package tasks orchestrates SIEM rule migrations against the remote migration service.
//
// # Core Operations
//
// [Orchestrator] is created once per session and immediately starts polling. It exposes:
//
//  1. [Orchestrator.CreateMigration] : submit rules through the [Batcher]
//     - Without a migration id the first chunk creates the migration
//     - Remaining chunks are appended sequentially, in input order
//
//  2. [Orchestrator.StartMigration] : start a migration with the stored connector
//     - Missing capabilities or connector produce a notification and a not-started result
//     - A successful call (re)starts the poll loop
//
//  3. [Orchestrator.StopMigration] : stop a migration, flagging it as stopping until it settles
//
//  4. [Orchestrator.GetJobStats] : refresh, number and publish the stats of every migration
//
// # Poll Loop
//
// Each iteration refreshes stats, notifies migrations that finished since they were last seen
// unfinished, and resumes interrupted migrations that have no recorded error. The loop sleeps
// for the poll interval and repeats while any migration is pending, running, or was just resumed.
// Failed refreshes are logged and retried on the next interval.
//
// # Status Publishing
//
// [Publisher] holds only the latest [Snapshot]. New subscribers receive it immediately and slow
// subscribers skip to the newest value. The zero snapshot (Known == false) means no refresh has
// completed yet.
//
// # Collaborators
//
// The orchestrator depends on narrow interfaces:
//   - [services.JobAPI] : remote migration service
//   - [PreferenceStore] : stored connector, tracing options and space
//   - [NotificationSink] : user-facing notifications
//   - [TelemetrySink] : fire-and-forget usage events
//   - [CapabilitySource] : currently granted capabilities, checked by [MissingCapabilities]
package tasks
