package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/services"
	"github.com/desertthunder/rulemig/internal/shared"
)

// DefaultPollInterval is the delay between poll iterations.
const DefaultPollInterval = 20 * time.Second

// StartReason explains a [StartResult] that did not start.
type StartReason string

const (
	ReasonNone                StartReason = ""
	ReasonMissingCapabilities StartReason = "missing_capabilities"
	ReasonMissingConnector    StartReason = "missing_connector"
	ReasonNotStarted          StartReason = "not_started"
)

// StartResult is the outcome of [Orchestrator.StartMigration].
type StartResult struct {
	Started bool
	Reason  StartReason
}

// StartOptions are the caller-selected parameters of a start.
type StartOptions struct {
	Retry                     models.RetryFilter
	SkipPrebuiltRulesMatching bool
}

// OrchestratorOpts contains the collaborators and settings of an [Orchestrator].
type OrchestratorOpts struct {
	API         services.JobAPI // required
	Preferences PreferenceStore
	Notifier    NotificationSink
	Telemetry   TelemetrySink

	RequiredCapabilities []string
	Capabilities         CapabilitySource

	BatchSize    int
	RateLimit    float64 // chunk submissions per second, 0 for unlimited
	PollInterval time.Duration
	SpaceID      string // used when no space is stored in Preferences
	Logger       *log.Logger
}

// Orchestrator owns the client-side view of all migrations in a space.
//
// It numbers migrations in order of first observation, publishes every refresh, notifies
// completed migrations once per completion and resumes interrupted ones. At most one poll
// loop runs at a time.
type Orchestrator struct {
	api       services.JobAPI
	prefs     Preferences
	notifier  NotificationSink
	telemetry TelemetrySink
	required  []string
	caps      CapabilitySource
	batcher   *Batcher
	publisher *Publisher
	interval  time.Duration
	spaceID   string
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	refreshMu sync.Mutex // held across a list call and its reconciliation

	mu         sync.Mutex // guards the tracking state below
	numbers    map[string]int
	nextNumber int
	awaiting   map[string]bool // observed unfinished since the last completion
	stopping   map[string]bool

	loopMu sync.Mutex
	loop   *pollLoop
	closed bool
}

type pollLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// NewOrchestrator creates an Orchestrator and starts polling.
//
// ctx bounds the lifetime of every poll loop the orchestrator runs.
func NewOrchestrator(ctx context.Context, opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("%w: migration API not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = nopTelemetry{}
	}
	if opts.Capabilities == nil {
		opts.Capabilities = StaticCapabilities(nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	base, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		api:       opts.API,
		prefs:     NewPreferences(opts.Preferences),
		notifier:  opts.Notifier,
		telemetry: opts.Telemetry,
		required:  slices.Clone(opts.RequiredCapabilities),
		caps:      opts.Capabilities,
		batcher:   NewBatcher(opts.API, opts.BatchSize, opts.RateLimit),
		publisher: NewPublisher(),
		interval:  opts.PollInterval,
		spaceID:   ResolveSpaceID(opts.Preferences, opts.SpaceID),
		logger:    shared.WithLogger(opts.Logger, "component", "orchestrator"),
		ctx:       base,
		cancel:    cancel,
		numbers:   make(map[string]int),
		awaiting:  make(map[string]bool),
		stopping:  make(map[string]bool),
	}

	o.logger.Debug("orchestrator created", "space_id", o.spaceID, "poll_interval", o.interval)
	o.StartPolling(base)
	return o, nil
}

// SpaceID returns the space the orchestrator was created for.
func (o *Orchestrator) SpaceID() string { return o.spaceID }

// Subscribe attaches to the snapshot stream. See [Publisher.Subscribe].
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) { return o.publisher.Subscribe() }

// Latest returns the most recently published snapshot.
func (o *Orchestrator) Latest() Snapshot { return o.publisher.Latest() }

// CreateMigration submits rules through the [Batcher] and returns the migration id.
func (o *Orchestrator) CreateMigration(ctx context.Context, rules []models.RuleDescriptor, jobID string) (string, error) {
	existing := jobID != ""
	id, err := o.batcher.Submit(ctx, rules, jobID)
	if err != nil {
		return id, err
	}

	o.logger.Info("rules submitted", "migration_id", id, "rules", len(rules), "batch_size", o.batcher.Size())
	o.telemetry.Report(telemetryEvent(models.EventMigrationCreated, o.spaceID, id, map[string]any{
		"rules":    len(rules),
		"chunks":   len(Chunk(rules, o.batcher.Size())),
		"appended": existing,
	}))
	return id, nil
}

// StartMigration starts jobID with the stored connector and tracing options.
//
// Missing capabilities or a missing connector are reported through the notifier and a
// not-started result, never as an error. Only transport failures are returned. The poll
// loop is (re)started after any start call reaches the service.
func (o *Orchestrator) StartMigration(ctx context.Context, jobID string, opts StartOptions) (StartResult, error) {
	if jobID == "" {
		return StartResult{}, fmt.Errorf("%w: migration id", shared.ErrMissingArgument)
	}
	current := o.describe(jobID)

	if missing := o.missingCapabilities(); len(missing) > 0 {
		o.logger.Warn("cannot start migration, missing capabilities", "migration_id", jobID, "missing", missing)
		o.notifier.Notify(missingCapabilitiesNotification(current, missing))
		return StartResult{Reason: ReasonMissingCapabilities}, nil
	}

	connectorID, ok := o.prefs.ConnectorID()
	if !ok {
		o.logger.Warn("cannot start migration, no connector selected", "migration_id", jobID)
		o.notifier.Notify(missingConnectorNotification(current))
		return StartResult{Reason: ReasonMissingConnector}, nil
	}

	req := models.StartRequest{
		JobID: jobID,
		Settings: models.StartSettings{
			ConnectorID:               connectorID,
			SkipPrebuiltRulesMatching: opts.SkipPrebuiltRulesMatching,
		},
		Retry:   opts.Retry,
		Tracing: o.prefs.TracingOptions(),
	}
	started, err := o.api.StartJob(ctx, req)
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to start migration %s: %w", jobID, err)
	}

	o.telemetry.Report(telemetryEvent(models.EventMigrationStarted, o.spaceID, jobID, map[string]any{
		"connector_id": connectorID,
		"retry":        string(opts.Retry),
		"started":      started,
	}))
	o.StartPolling(o.ctx)

	if !started {
		o.logger.Warn("migration service declined to start migration", "migration_id", jobID)
		return StartResult{Reason: ReasonNotStarted}, nil
	}
	o.logger.Info("migration started", "migration_id", jobID, "connector_id", connectorID)
	return StartResult{Started: true}, nil
}

// StopMigration asks the service to stop jobID.
//
// The job is flagged as stopping in the published snapshot while the request is in flight and
// for as long as it remains pending or running afterwards.
func (o *Orchestrator) StopMigration(ctx context.Context, jobID string) (bool, error) {
	if jobID == "" {
		return false, fmt.Errorf("%w: migration id", shared.ErrMissingArgument)
	}

	o.setStopping(jobID, true)
	stopped, err := o.api.StopJob(ctx, jobID)
	if err != nil {
		o.setStopping(jobID, false)
		return false, fmt.Errorf("failed to stop migration %s: %w", jobID, err)
	}
	if !stopped {
		o.setStopping(jobID, false)
		return false, nil
	}

	o.logger.Info("migration stop requested", "migration_id", jobID)
	o.telemetry.Report(telemetryEvent(models.EventMigrationStopped, o.spaceID, jobID, nil))
	return true, nil
}

// GetJobStats refreshes the stats of every migration, publishes them and returns them ordered by number.
//
// Migrations seen finishing since their last observation trigger a success notification.
// Refreshes are serialized so that a slow response is never reconciled after a newer one.
func (o *Orchestrator) GetJobStats(ctx context.Context) ([]models.JobStats, error) {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	jobs, err := o.api.ListAllJobStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration stats: %w", err)
	}

	o.mu.Lock()
	stats := make([]models.JobStats, 0, len(jobs))
	var completed []models.JobStats
	for _, job := range jobs {
		s := models.JobStats{Job: job, Number: o.number(job.ID)}

		if o.stopping[job.ID] && job.Status.IsActive() {
			s.IsStopping = true
		} else {
			delete(o.stopping, job.ID)
		}

		if job.Status == models.StatusFinished {
			if o.awaiting[job.ID] {
				completed = append(completed, s)
			}
			delete(o.awaiting, job.ID)
		} else {
			o.awaiting[job.ID] = true
		}

		stats = append(stats, s)
	}
	slices.SortStableFunc(stats, func(a, b models.JobStats) int { return a.Number - b.Number })
	o.publisher.Publish(stats)
	o.mu.Unlock()

	for _, s := range completed {
		o.logger.Info("migration finished", "migration_id", s.ID, "number", s.Number)
		o.notifier.Notify(finishedNotification(s))
	}
	return stats, nil
}

// StartPolling runs the poll loop until every migration is terminal, ctx is canceled or [Orchestrator.Stop] is called.
//
// When a loop is already running it is woken to poll immediately instead of starting another.
func (o *Orchestrator) StartPolling(ctx context.Context) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.closed {
		return
	}
	if o.loop != nil {
		select {
		case o.loop.kick <- struct{}{}:
		default:
		}
		return
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &pollLoop{cancel: cancel, done: make(chan struct{}), kick: make(chan struct{}, 1)}
	o.loop = l
	go o.run(lctx, l)
}

// Polling reports whether a poll loop is running.
func (o *Orchestrator) Polling() bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	return o.loop != nil
}

// Stop ends the running poll loop, if any, and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.loopMu.Lock()
	l := o.loop
	o.loopMu.Unlock()
	if l == nil {
		return
	}
	l.cancel()
	<-l.done
}

// Close stops polling for good and detaches every subscriber.
func (o *Orchestrator) Close() {
	o.loopMu.Lock()
	o.closed = true
	o.loopMu.Unlock()

	o.Stop()
	o.cancel()
	o.publisher.Close()
}

func (o *Orchestrator) run(ctx context.Context, l *pollLoop) {
	defer close(l.done)
	defer l.cancel()

	for {
		keep := o.poll(ctx)

		if ctx.Err() != nil {
			o.release(l)
			return
		}
		if !keep && !o.retain(l) {
			o.logger.Debug("all migrations terminal, polling stopped")
			return
		}
		if !keep {
			continue
		}

		timer := time.NewTimer(o.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.release(l)
			return
		case <-l.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// retain reports whether l must keep going because it was woken after deciding to exit.
// Otherwise it releases l under the same lock StartPolling checks.
func (o *Orchestrator) retain(l *pollLoop) bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	select {
	case <-l.kick:
		return true
	default:
	}
	if o.loop == l {
		o.loop = nil
	}
	return false
}

func (o *Orchestrator) release(l *pollLoop) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loop == l {
		o.loop = nil
	}
}

// poll runs one iteration and reports whether another is needed.
//
// Failures to list stats are logged and keep the loop alive. Only migrations present
// in the response are considered.
func (o *Orchestrator) poll(ctx context.Context) bool {
	stats, err := o.GetJobStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Error("failed to poll migration stats", "error", err)
		}
		return true
	}

	keep := false
	for _, s := range stats {
		switch {
		case s.Status.IsActive():
			keep = true
		case s.Status == models.StatusInterrupted:
			if o.resume(ctx, s) {
				keep = true
			}
		}
	}
	return keep
}

// resume restarts an interrupted migration with the parameters of its last run.
//
// It reports whether the migration should keep the loop alive: true when a start was
// issued or failed in transit, false when a precondition blocked it.
func (o *Orchestrator) resume(ctx context.Context, s models.JobStats) bool {
	logger := shared.WithLogger(o.logger, "migration_id", s.ID)

	if msg := s.ExecutionError(); msg != "" {
		logger.Debug("not resuming migration that failed", "error", msg)
		return false
	}

	if missing := o.missingCapabilities(); len(missing) > 0 {
		logger.Warn("cannot resume migration, missing capabilities", "missing", missing)
		o.notifier.Notify(missingCapabilitiesNotification(s, missing))
		return false
	}

	var (
		connectorID string
		skip        bool
	)
	if le := s.LastExecution; le != nil {
		connectorID = le.ConnectorID
		if le.SkipPrebuiltRulesMatching != nil {
			skip = *le.SkipPrebuiltRulesMatching
		}
	}
	if connectorID == "" {
		connectorID, _ = o.prefs.ConnectorID()
	}
	if connectorID == "" {
		logger.Warn("cannot resume migration, no connector selected")
		o.notifier.Notify(missingConnectorNotification(s))
		return false
	}

	started, err := o.api.StartJob(ctx, models.StartRequest{
		JobID:    s.ID,
		Settings: models.StartSettings{ConnectorID: connectorID, SkipPrebuiltRulesMatching: skip},
		Tracing:  o.prefs.TracingOptions(),
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to resume migration", "error", err)
		}
		return true
	}
	if !started {
		logger.Warn("migration service declined to resume migration")
		return false
	}

	logger.Info("migration resumed", "connector_id", connectorID)
	o.telemetry.Report(telemetryEvent(models.EventMigrationResumed, o.spaceID, s.ID, map[string]any{
		"connector_id":                 connectorID,
		"skip_prebuilt_rules_matching": skip,
	}))
	return true
}

func (o *Orchestrator) missingCapabilities() []string {
	return MissingCapabilities(o.required, o.caps.Granted())
}

// number returns the sticky number of jobID, assigning the next one on first sight. Callers hold o.mu.
func (o *Orchestrator) number(jobID string) int {
	if n, ok := o.numbers[jobID]; ok {
		return n
	}
	o.nextNumber++
	o.numbers[jobID] = o.nextNumber
	return o.nextNumber
}

// describe returns the last published stats of jobID, or just its id when untracked.
func (o *Orchestrator) describe(jobID string) models.JobStats {
	if s, ok := o.publisher.Latest().Find(jobID); ok {
		return s
	}
	return models.JobStats{Job: models.Job{ID: jobID}}
}

// setStopping updates the stopping flag of jobID and republishes the latest snapshot with it applied.
func (o *Orchestrator) setStopping(jobID string, stopping bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if stopping {
		o.stopping[jobID] = true
	} else {
		delete(o.stopping, jobID)
	}

	latest := o.publisher.Latest()
	if !latest.Known {
		return
	}
	stats := slices.Clone(latest.Stats)
	for i := range stats {
		if stats[i].ID == jobID {
			stats[i].IsStopping = stopping && stats[i].Status.IsActive()
		}
	}
	o.publisher.Publish(stats)
}
