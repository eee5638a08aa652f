// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/rulemig/internal/models"
)

// AddCall records one [FakeJobAPI.AddToJob] invocation.
type AddCall struct {
	JobID string
	Chunk []models.RuleDescriptor
}

// FakeJobAPI is an in-memory, concurrency-safe test double for [services.JobAPI].
//
// ListAllJobStats replays Polls in order and keeps returning the last entry once exhausted.
type FakeJobAPI struct {
	mu sync.Mutex

	JobID      string // id returned by CreateJob, defaults to "migration-1"
	Polls      [][]models.Job
	NotStarted bool // when true StartJob reports started=false

	CreateErr error
	AddErr    error
	AddErrAt  int // 1-based AddToJob call that fails with AddErr; 0 fails every call
	StartErr  error
	StopErr   error
	ListErr   error
	ListErrs  int // number of leading ListAllJobStats calls failing with ListErr; 0 means all

	Created    [][]models.RuleDescriptor
	Added      []AddCall
	Started    []models.StartRequest
	Stopped    []string
	listCalls  int
	callOrder  []string
}

func (f *FakeJobAPI) CreateJob(ctx context.Context, chunk []models.RuleDescriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "create")
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.Created = append(f.Created, append([]models.RuleDescriptor(nil), chunk...))
	if f.JobID == "" {
		return "migration-1", nil
	}
	return f.JobID, nil
}

func (f *FakeJobAPI) AddToJob(ctx context.Context, jobID string, chunk []models.RuleDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "add")
	if f.AddErr != nil && (f.AddErrAt == 0 || f.AddErrAt == len(f.Added)+1) {
		return f.AddErr
	}
	f.Added = append(f.Added, AddCall{JobID: jobID, Chunk: append([]models.RuleDescriptor(nil), chunk...)})
	return nil
}

func (f *FakeJobAPI) StartJob(ctx context.Context, req models.StartRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "start")
	if f.StartErr != nil {
		return false, f.StartErr
	}
	f.Started = append(f.Started, req)
	return !f.NotStarted, nil
}

func (f *FakeJobAPI) StopJob(ctx context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "stop")
	if f.StopErr != nil {
		return false, f.StopErr
	}
	f.Stopped = append(f.Stopped, jobID)
	return true, nil
}

func (f *FakeJobAPI) ListAllJobStats(ctx context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "list")
	f.listCalls++
	if f.ListErr != nil && (f.ListErrs == 0 || f.listCalls <= f.ListErrs) {
		return nil, f.ListErr
	}

	polled := f.listCalls
	if f.ListErr != nil {
		polled -= f.ListErrs
	}
	if len(f.Polls) == 0 {
		return []models.Job{}, nil
	}
	idx := polled - 1
	if idx >= len(f.Polls) {
		idx = len(f.Polls) - 1
	}
	return append([]models.Job(nil), f.Polls[idx]...), nil
}

// Calls returns the sequence of API methods invoked so far.
func (f *FakeJobAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.callOrder...)
}

// ListCalls returns how many times ListAllJobStats ran.
func (f *FakeJobAPI) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// StartCalls returns a copy of the recorded start requests.
func (f *FakeJobAPI) StartCalls() []models.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StartRequest(nil), f.Started...)
}

// WaitFor polls cond until it holds or the timeout elapses, failing the test on timeout.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// Rules builds n valid rule descriptors with ids rule-1..rule-n.
func Rules(n int) []models.RuleDescriptor {
	rules := make([]models.RuleDescriptor, n)
	for i := range rules {
		id := "rule-" + strconv.Itoa(i+1)
		rules[i] = models.RuleDescriptor{
			ID:            id,
			Vendor:        "splunk",
			Title:         "Rule " + id,
			Query:         "index=main " + id,
			QueryLanguage: "spl",
		}
	}
	return rules
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

var _ io.ReadCloser = (*FCloser)(nil)
