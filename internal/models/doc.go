// Package models defines the domain types shared by the rule migration client.
//
// The package contains three groups of types:
//
// 1. Remote snapshots: what the migration service reports
//   - [Job] : a server-tracked rule migration and its [JobStatus]
//   - [LastExecution] : parameters and error of the most recent run attempt
//   - [RuleCounts] : per-status rule totals of a migration
//
// 2. Commands: what the client sends
//   - [RuleDescriptor] : one source SIEM rule to translate
//   - [StartRequest] : settings, retry filter and tracing for a start call
//
// 3. Client-side views and events
//   - [JobStats] : a [Job] with a sticky display number and stop intent
//   - [Notification] : a user-facing event decided by the orchestrator
//   - [TelemetryEvent] : a fire-and-forget usage record
//
// Jobs are never mutated locally; the orchestrator only derives [JobStats] from polled snapshots.
package models
