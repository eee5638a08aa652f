package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	tu "github.com/desertthunder/rulemig/internal/testing"
)

func interrupted(id string, le *models.LastExecution) models.Job {
	return models.Job{ID: id, Status: models.StatusInterrupted, LastExecution: le}
}

// inflightAPI records the maximum number of concurrent ListAllJobStats calls.
type inflightAPI struct {
	*tu.FakeJobAPI
	inflight atomic.Int32
	max      atomic.Int32
}

func (a *inflightAPI) ListAllJobStats(ctx context.Context) ([]models.Job, error) {
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		m := a.max.Load()
		if n <= m || a.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return a.FakeJobAPI.ListAllJobStats(ctx)
}

func TestNewOrchestrator(t *testing.T) {
	t.Run("Requires API", func(t *testing.T) {
		_, err := NewOrchestrator(context.Background(), OrchestratorOpts{})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Polls Immediately", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{job("a", models.StatusFinished)}}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{})

		tu.WaitFor(t, waitTimeout, func() bool { return o.Latest().Known })
		if api.ListCalls() < 1 {
			t.Error("expected construction to trigger a poll")
		}
	})

	t.Run("Space From Preferences", func(t *testing.T) {
		api := &tu.FakeJobAPI{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{
			Preferences: mapStore{PrefSpaceID: "security"},
			SpaceID:     "fallback",
		})
		if o.SpaceID() != "security" {
			t.Errorf("expected stored space, got %s", o.SpaceID())
		}
	})

	t.Run("Space Falls Back To Option", func(t *testing.T) {
		o := newTestOrchestrator(t, &tu.FakeJobAPI{}, OrchestratorOpts{SpaceID: "fallback"})
		if o.SpaceID() != "fallback" {
			t.Errorf("expected fallback space, got %s", o.SpaceID())
		}
	})
}

func TestOrchestrator_GetJobStats(t *testing.T) {
	t.Run("Numbers Are Stable", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{},
			{job("a", models.StatusRunning), job("b", models.StatusRunning)},
			{job("c", models.StatusRunning), job("a", models.StatusRunning)},
			{job("b", models.StatusRunning), job("d", models.StatusPending), job("c", models.StatusRunning)},
		}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{})
		waitIdle(t, o)

		want := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
		for i := 0; i < 3; i++ {
			stats, err := o.GetJobStats(context.Background())
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}

			seen := map[int]string{}
			prev := 0
			for _, s := range stats {
				if s.Number != want[s.ID] {
					t.Errorf("poll %d: expected %s numbered %d, got %d", i, s.ID, want[s.ID], s.Number)
				}
				if other, dup := seen[s.Number]; dup {
					t.Errorf("poll %d: %s and %s share number %d", i, other, s.ID, s.Number)
				}
				seen[s.Number] = s.ID
				if s.Number < prev {
					t.Errorf("poll %d: snapshot not ordered by number", i)
				}
				prev = s.Number
			}
		}
	})

	t.Run("Publishes Snapshot", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{}, {job("a", models.StatusStopped)}}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{})
		waitIdle(t, o)

		ch, cancel := o.Subscribe()
		defer cancel()
		if snap := <-ch; !snap.Known || len(snap.Stats) != 0 {
			t.Errorf("expected known empty snapshot from initial poll, got %+v", snap)
		}

		stats, err := o.GetJobStats(context.Background())
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		snap := <-ch
		if len(snap.Stats) != 1 || snap.Stats[0].ID != "a" || len(stats) != 1 {
			t.Errorf("expected published stats for a, got %+v", snap)
		}
	})

	t.Run("Propagates Transport Errors", func(t *testing.T) {
		api := &tu.FakeJobAPI{ListErr: shared.ErrAPIRequest, ListErrs: 2}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Hour})
		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() >= 1 })
		o.Stop()

		_, err := o.GetJobStats(context.Background())
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if o.Latest().Known {
			t.Error("failed refreshes must not publish")
		}
	})
}

func TestOrchestrator_StartMigration(t *testing.T) {
	t.Run("Missing Capabilities", func(t *testing.T) {
		api := &tu.FakeJobAPI{}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{
			Preferences:          mapStore{PrefConnectorID: "connector-123"},
			Notifier:             notes,
			RequiredCapabilities: []string{"siem_migrations.all", "actions.execute"},
			Capabilities:         StaticCapabilities{"actions.execute"},
		})
		waitIdle(t, o)

		res, err := o.StartMigration(context.Background(), "m-1", StartOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Started || res.Reason != ReasonMissingCapabilities {
			t.Errorf("expected not started for missing capabilities, got %+v", res)
		}
		if len(api.StartCalls()) != 0 {
			t.Error("expected start API not to be called")
		}

		got := notes.all()
		if len(got) != 1 || got[0].Kind != models.NotifyMissingCapabilities {
			t.Fatalf("expected one missing capabilities notification, got %+v", got)
		}
		if len(got[0].MissingCapabilities) != 1 || got[0].MissingCapabilities[0] != "siem_migrations.all" {
			t.Errorf("expected missing siem_migrations.all, got %v", got[0].MissingCapabilities)
		}
		if got[0].JobID != "m-1" {
			t.Errorf("expected job id in payload, got %q", got[0].JobID)
		}
	})

	t.Run("Missing Connector", func(t *testing.T) {
		api := &tu.FakeJobAPI{}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes})
		waitIdle(t, o)

		res, err := o.StartMigration(context.Background(), "m-1", StartOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Started || res.Reason != ReasonMissingConnector {
			t.Errorf("expected not started for missing connector, got %+v", res)
		}
		if len(api.StartCalls()) != 0 {
			t.Error("expected start API not to be called")
		}
		if notes.count(models.NotifyMissingConnector) != 1 {
			t.Errorf("expected one missing connector notification, got %+v", notes.all())
		}
	})

	t.Run("Starts And Polls", func(t *testing.T) {
		api := &tu.FakeJobAPI{}
		telemetry := &recordingTelemetry{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{
			Preferences: mapStore{
				PrefConnectorID:    "connector-123",
				PrefTracingOptions: `{"project_name":"proj","api_key":"key"}`,
			},
			Telemetry: telemetry,
		})
		waitIdle(t, o)
		before := api.ListCalls()

		res, err := o.StartMigration(context.Background(), "m-1", StartOptions{Retry: models.RetryFailed, SkipPrebuiltRulesMatching: true})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Started {
			t.Errorf("expected started, got %+v", res)
		}

		calls := api.StartCalls()
		if len(calls) != 1 {
			t.Fatalf("expected one start call, got %d", len(calls))
		}
		req := calls[0]
		if req.JobID != "m-1" || req.Settings.ConnectorID != "connector-123" || !req.Settings.SkipPrebuiltRulesMatching {
			t.Errorf("unexpected start request %+v", req)
		}
		if req.Retry != models.RetryFailed {
			t.Errorf("expected retry=failed, got %q", req.Retry)
		}
		if req.Tracing == nil || req.Tracing.ProjectName != "proj" {
			t.Errorf("expected stored tracing options, got %+v", req.Tracing)
		}

		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() > before })

		events := telemetry.all()
		if len(events) != 1 || events[0].Type != models.EventMigrationStarted || events[0].MigrationID != "m-1" {
			t.Errorf("expected started telemetry, got %+v", events)
		}
	})

	t.Run("Service Declines", func(t *testing.T) {
		api := &tu.FakeJobAPI{NotStarted: true}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Preferences: mapStore{PrefConnectorID: "c"}})
		waitIdle(t, o)

		res, err := o.StartMigration(context.Background(), "m-1", StartOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Started || res.Reason != ReasonNotStarted {
			t.Errorf("expected not started, got %+v", res)
		}
	})

	t.Run("Transport Error Propagates", func(t *testing.T) {
		api := &tu.FakeJobAPI{StartErr: shared.ErrAPIRequest}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Preferences: mapStore{PrefConnectorID: "c"}})
		waitIdle(t, o)

		_, err := o.StartMigration(context.Background(), "m-1", StartOptions{})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Requires Job ID", func(t *testing.T) {
		o := newTestOrchestrator(t, &tu.FakeJobAPI{}, OrchestratorOpts{})

		_, err := o.StartMigration(context.Background(), "", StartOptions{})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestOrchestrator_PollLoop(t *testing.T) {
	t.Run("Interrupted With Error Is Not Resumed", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{interrupted("m-1", &models.LastExecution{ConnectorID: "connector-last", Error: "model unavailable"})},
			{job("m-1", models.StatusFinished)},
		}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Preferences: mapStore{PrefConnectorID: "connector-123"}})
		waitIdle(t, o)

		if n := len(api.StartCalls()); n != 0 {
			t.Errorf("expected no start calls, got %d", n)
		}
	})

	t.Run("Interrupted Without Connector Is Not Resumed", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{interrupted("m-1", nil)},
			{job("m-1", models.StatusFinished)},
		}}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes})
		waitIdle(t, o)

		if n := len(api.StartCalls()); n != 0 {
			t.Errorf("expected no start calls, got %d", n)
		}
		if notes.count(models.NotifyMissingConnector) != 1 {
			t.Errorf("expected missing connector notification, got %+v", notes.all())
		}
	})

	t.Run("Interrupted Without Capabilities Is Not Resumed", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{interrupted("m-1", &models.LastExecution{ConnectorID: "c"})}}}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes, RequiredCapabilities: []string{"siem_migrations.all"}})
		waitIdle(t, o)

		if n := len(api.StartCalls()); n != 0 {
			t.Errorf("expected no start calls, got %d", n)
		}
		if notes.count(models.NotifyMissingCapabilities) != 1 {
			t.Errorf("expected missing capabilities notification, got %+v", notes.all())
		}
	})

	t.Run("Interrupted Is Resumed With Last Execution", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{interrupted("m-1", &models.LastExecution{ConnectorID: "connector-last", SkipPrebuiltRulesMatching: tu.BoolPtr(true)})},
			{job("m-1", models.StatusFinished)},
		}}
		notes := &recordingNotifier{}
		telemetry := &recordingTelemetry{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{
			Preferences: mapStore{PrefConnectorID: "connector-pref"},
			Notifier:    notes,
			Telemetry:   telemetry,
		})
		waitIdle(t, o)

		calls := api.StartCalls()
		if len(calls) != 1 {
			t.Fatalf("expected exactly one start call, got %d", len(calls))
		}
		want := models.StartSettings{ConnectorID: "connector-last", SkipPrebuiltRulesMatching: true}
		if calls[0].Settings != want {
			t.Errorf("expected settings %+v, got %+v", want, calls[0].Settings)
		}
		if calls[0].Retry != models.RetryNone {
			t.Errorf("expected no retry, got %q", calls[0].Retry)
		}
		if notes.count(models.NotifyMigrationFinished) != 1 {
			t.Errorf("expected one finished notification, got %+v", notes.all())
		}
		if events := telemetry.all(); len(events) != 1 || events[0].Type != models.EventMigrationResumed {
			t.Errorf("expected resumed telemetry, got %+v", events)
		}
	})

	t.Run("Resume Falls Back To Stored Connector", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{interrupted("m-1", &models.LastExecution{})},
			{job("m-1", models.StatusFinished)},
		}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Preferences: mapStore{
			PrefConnectorID:    "connector-pref",
			PrefTracingOptions: `{"project_name":"proj","api_key":"key"}`,
		}})
		waitIdle(t, o)

		calls := api.StartCalls()
		if len(calls) != 1 {
			t.Fatalf("expected exactly one start call, got %d", len(calls))
		}
		if calls[0].Settings.ConnectorID != "connector-pref" || calls[0].Settings.SkipPrebuiltRulesMatching {
			t.Errorf("unexpected settings %+v", calls[0].Settings)
		}
		if calls[0].Tracing == nil || calls[0].Tracing.APIKey != "key" {
			t.Errorf("expected stored tracing options, got %+v", calls[0].Tracing)
		}
	})

	t.Run("Resume Transport Error Keeps Polling", func(t *testing.T) {
		api := &tu.FakeJobAPI{
			Polls:    [][]models.Job{{interrupted("m-1", &models.LastExecution{ConnectorID: "c"})}},
			StartErr: shared.ErrAPIRequest,
		}
		o := newTestOrchestrator(t, api, OrchestratorOpts{})

		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() >= 3 })
		o.Stop()
		if o.Polling() {
			t.Error("expected loop to be stopped")
		}
	})

	t.Run("Stops When All Terminal", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{
			job("a", models.StatusFinished),
			job("b", models.StatusError),
			job("c", models.StatusStopped),
		}}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Millisecond})
		waitIdle(t, o)

		calls := api.ListCalls()
		time.Sleep(20 * time.Millisecond)
		if api.ListCalls() != calls {
			t.Errorf("expected no further polls, got %d after %d", api.ListCalls(), calls)
		}
	})

	t.Run("Keeps Polling While Active", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{job("a", models.StatusPending)},
			{job("a", models.StatusRunning)},
			{job("a", models.StatusFinished)},
		}}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes})
		waitIdle(t, o)

		if api.ListCalls() != 3 {
			t.Errorf("expected 3 polls, got %d", api.ListCalls())
		}
		if notes.count(models.NotifyMigrationFinished) != 1 {
			t.Errorf("expected one finished notification, got %+v", notes.all())
		}

		if _, err := o.GetJobStats(context.Background()); err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if notes.count(models.NotifyMigrationFinished) != 1 {
			t.Error("expected no repeat notification for an already notified completion")
		}
	})

	t.Run("First Seen Finished Does Not Notify", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{job("a", models.StatusFinished)}}}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes})
		waitIdle(t, o)

		if len(notes.all()) != 0 {
			t.Errorf("expected no notifications, got %+v", notes.all())
		}
	})

	t.Run("Missing Jobs Count As Terminal", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{job("a", models.StatusRunning)},
			{},
		}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{})
		waitIdle(t, o)

		if api.ListCalls() != 2 {
			t.Errorf("expected loop to end after job vanished, got %d polls", api.ListCalls())
		}
		if snap := o.Latest(); !snap.Known || len(snap.Stats) != 0 {
			t.Errorf("expected empty snapshot, got %+v", snap)
		}
	})

	t.Run("Survives List Failures", func(t *testing.T) {
		api := &tu.FakeJobAPI{
			Polls:    [][]models.Job{{job("a", models.StatusRunning)}, {job("a", models.StatusFinished)}},
			ListErr:  shared.ErrAPIRequest,
			ListErrs: 2,
		}
		notes := &recordingNotifier{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{Notifier: notes})
		waitIdle(t, o)

		if api.ListCalls() != 4 {
			t.Errorf("expected 2 failed and 2 successful polls, got %d", api.ListCalls())
		}
		if notes.count(models.NotifyMigrationFinished) != 1 {
			t.Errorf("expected recovery to notify completion, got %+v", notes.all())
		}
	})

	t.Run("Single Loop", func(t *testing.T) {
		api := &inflightAPI{FakeJobAPI: &tu.FakeJobAPI{Polls: [][]models.Job{{job("a", models.StatusRunning)}}}}
		o, err := NewOrchestrator(context.Background(), OrchestratorOpts{API: api, PollInterval: time.Millisecond})
		if err != nil {
			t.Fatalf("failed to create orchestrator: %v", err)
		}
		defer o.Close()

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.StartPolling(context.Background())
			}()
		}
		wg.Wait()
		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() >= 5 })
		o.Stop()

		if m := api.max.Load(); m != 1 {
			t.Errorf("expected at most one concurrent poll, got %d", m)
		}
	})

	t.Run("Stop Is Deterministic", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{job("a", models.StatusRunning)}}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Millisecond})
		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() >= 2 })

		o.Stop()
		if o.Polling() {
			t.Fatal("expected no loop after Stop")
		}
		calls := api.ListCalls()
		time.Sleep(10 * time.Millisecond)
		if api.ListCalls() != calls {
			t.Error("expected no polls after Stop")
		}

		o.StartPolling(context.Background())
		tu.WaitFor(t, waitTimeout, func() bool { return api.ListCalls() > calls })
	})

	t.Run("Close Prevents Restart", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{{job("a", models.StatusRunning)}}}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Millisecond})
		ch, _ := o.Subscribe()

		o.Close()
		o.StartPolling(context.Background())
		if o.Polling() {
			t.Error("expected closed orchestrator not to poll")
		}
		for range ch {
		}
	})
}

func TestOrchestrator_StopMigration(t *testing.T) {
	t.Run("Flags Stopping Until Settled", func(t *testing.T) {
		api := &tu.FakeJobAPI{Polls: [][]models.Job{
			{job("a", models.StatusRunning)},
			{job("a", models.StatusRunning)},
			{job("a", models.StatusStopped)},
		}}
		telemetry := &recordingTelemetry{}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Hour, Telemetry: telemetry})
		tu.WaitFor(t, waitTimeout, func() bool { return o.Latest().Known })

		stopped, err := o.StopMigration(context.Background(), "a")
		if err != nil || !stopped {
			t.Fatalf("expected stop without error, got %v, %v", stopped, err)
		}
		if s, _ := o.Latest().Find("a"); !s.IsStopping {
			t.Error("expected published job to be stopping")
		}

		stats, _ := o.GetJobStats(context.Background())
		if !stats[0].IsStopping {
			t.Error("expected stopping flag kept while running")
		}

		stats, _ = o.GetJobStats(context.Background())
		if stats[0].IsStopping {
			t.Error("expected stopping flag cleared once stopped")
		}

		if events := telemetry.all(); len(events) != 1 || events[0].Type != models.EventMigrationStopped {
			t.Errorf("expected stopped telemetry, got %+v", events)
		}
	})

	t.Run("Failure Clears Flag", func(t *testing.T) {
		api := &tu.FakeJobAPI{
			Polls:   [][]models.Job{{job("a", models.StatusRunning)}},
			StopErr: shared.ErrAPIRequest,
		}
		o := newTestOrchestrator(t, api, OrchestratorOpts{PollInterval: time.Hour})
		tu.WaitFor(t, waitTimeout, func() bool { return o.Latest().Known })

		_, err := o.StopMigration(context.Background(), "a")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if s, _ := o.Latest().Find("a"); s.IsStopping {
			t.Error("expected stopping flag cleared after failure")
		}
	})
}

func TestOrchestrator_CreateMigration(t *testing.T) {
	api := &tu.FakeJobAPI{JobID: "m-9"}
	telemetry := &recordingTelemetry{}
	o := newTestOrchestrator(t, api, OrchestratorOpts{BatchSize: 2, Telemetry: telemetry, SpaceID: "security"})

	id, err := o.CreateMigration(context.Background(), tu.Rules(5), "")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if id != "m-9" {
		t.Errorf("expected m-9, got %s", id)
	}

	events := telemetry.all()
	if len(events) != 1 {
		t.Fatalf("expected one telemetry event, got %d", len(events))
	}
	e := events[0]
	if e.Type != models.EventMigrationCreated || e.SpaceID != "security" || e.Attributes["chunks"] != 3 {
		t.Errorf("unexpected event %+v", e)
	}

	if _, err := o.CreateMigration(context.Background(), nil, ""); !errors.Is(err, shared.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

// gatedListAPI answers ListAllJobStats by call number and holds call gateAt until release is closed.
type gatedListAPI struct {
	*tu.FakeJobAPI
	answers [][]models.Job // last entry repeats
	gateAt  int
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (a *gatedListAPI) ListAllJobStats(ctx context.Context) ([]models.Job, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()

	if n == a.gateAt {
		close(a.entered)
		<-a.release
	}
	idx := min(n, len(a.answers)) - 1
	return append([]models.Job(nil), a.answers[idx]...), nil
}

func TestOrchestrator_ConcurrentRefresh(t *testing.T) {
	t.Run("Slow Response Never Overrides Newer One", func(t *testing.T) {
		api := &gatedListAPI{
			FakeJobAPI: &tu.FakeJobAPI{},
			answers: [][]models.Job{
				{job("a", models.StatusRunning)},
				{job("a", models.StatusRunning)},
				{job("a", models.StatusFinished)},
			},
			gateAt:  2,
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		notifier := &recordingNotifier{}
		o, err := NewOrchestrator(context.Background(), OrchestratorOpts{
			API:          api,
			Notifier:     notifier,
			PollInterval: time.Hour,
		})
		if err != nil {
			t.Fatalf("failed to create orchestrator: %v", err)
		}
		defer o.Close()

		tu.WaitFor(t, waitTimeout, func() bool { return o.Latest().Known })
		o.Stop()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.GetJobStats(context.Background())
		}()
		<-api.entered

		wg.Add(1)
		go func() {
			defer wg.Done()
			o.GetJobStats(context.Background())
		}()
		time.Sleep(20 * time.Millisecond)
		close(api.release)
		wg.Wait()

		if _, err := o.GetJobStats(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		finished := 0
		for _, n := range notifier.all() {
			if n.Kind == models.NotifyMigrationFinished {
				finished++
			}
		}
		if finished != 1 {
			t.Errorf("expected exactly one finished notification, got %d", finished)
		}

		s, ok := o.Latest().Find("a")
		if !ok || s.Status != models.StatusFinished {
			t.Errorf("expected latest snapshot to show a finished, got %+v", s)
		}
	})
}
