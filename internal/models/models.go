// package models defines the data model for the rule migration client
package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the remote lifecycle state of a migration.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusRunning     JobStatus = "running"
	StatusFinished    JobStatus = "finished"
	StatusInterrupted JobStatus = "interrupted"
	StatusError       JobStatus = "error"
	StatusStopped     JobStatus = "stopped"
)

// IsActive reports whether the remote service is still working on the job.
func (s JobStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsTerminal reports whether no further remote progress is expected without a new start command.
//
// Interrupted counts as terminal here; resumption is decided by the orchestrator.
// Statuses this client does not know are terminal.
func (s JobStatus) IsTerminal() bool {
	return !s.IsActive()
}

// RetryFilter selects which rules a restarted migration processes again.
type RetryFilter string

const (
	RetryNone               RetryFilter = ""
	RetryFailed             RetryFilter = "failed"
	RetryNotFullyTranslated RetryFilter = "not_fully_translated"
)

// ParseRetryFilter validates a retry filter coming from user input.
func ParseRetryFilter(s string) (RetryFilter, error) {
	switch f := RetryFilter(strings.TrimSpace(s)); f {
	case RetryNone, RetryFailed, RetryNotFullyTranslated:
		return f, nil
	default:
		return RetryNone, fmt.Errorf("unknown retry filter %q", s)
	}
}

// LastExecution records the parameters and outcome of a migration's most recent run.
type LastExecution struct {
	ConnectorID               string     `json:"connector_id,omitempty"`
	SkipPrebuiltRulesMatching *bool      `json:"skip_prebuilt_rules_matching,omitempty"`
	Error                     string     `json:"error,omitempty"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	FinishedAt                *time.Time `json:"finished_at,omitempty"`
	IsStopped                 bool       `json:"is_stopped,omitempty"`
}

// RuleCounts summarizes the rules of a migration by processing state.
type RuleCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Job is a snapshot of a migration as reported by the remote service.
type Job struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	Status        JobStatus      `json:"status"`
	Rules         RuleCounts     `json:"rules"`
	LastExecution *LastExecution `json:"last_execution,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	LastUpdatedAt *time.Time     `json:"last_updated_at,omitempty"`
}

// ExecutionError returns the error recorded by the last run, if any.
func (j Job) ExecutionError() string {
	if j.LastExecution == nil {
		return ""
	}
	return j.LastExecution.Error
}

// JobStats is the client-side view of a [Job].
type JobStats struct {
	Job
	Number     int  `json:"number"`      // 1-based, assigned on first observation and never reassigned
	IsStopping bool `json:"is_stopping"` // set when a stop command was issued and the job is still active
}

// RuleDescriptor is a source SIEM rule submitted for translation.
type RuleDescriptor struct {
	ID            string            `json:"id" yaml:"id"`
	Vendor        string            `json:"vendor" yaml:"vendor"`
	Title         string            `json:"title" yaml:"title"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Query         string            `json:"query" yaml:"query"`
	QueryLanguage string            `json:"query_language" yaml:"query_language"`
	Severity      string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Validate checks the fields the migration service requires.
func (r RuleDescriptor) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("rule id is required")
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("rule %s: title is required", r.ID)
	case strings.TrimSpace(r.Query) == "":
		return fmt.Errorf("rule %s: query is required", r.ID)
	}
	return nil
}

// StartSettings are the execution parameters of a start command.
type StartSettings struct {
	ConnectorID               string `json:"connector_id"`
	SkipPrebuiltRulesMatching bool   `json:"skip_prebuilt_rules_matching"`
}

// TracingOptions configures LangSmith tracing of the translation run.
type TracingOptions struct {
	ProjectName string `json:"project_name"`
	APIKey      string `json:"api_key"`
}

// StartRequest is the full payload of a start command.
type StartRequest struct {
	JobID    string
	Settings StartSettings
	Retry    RetryFilter
	Tracing  *TracingOptions
}
