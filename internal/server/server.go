// package server contains the HTTP status server for the rule migration orchestrator
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Orchestrator is the subset of [tasks.Orchestrator] the server drives.
type Orchestrator interface {
	Latest() tasks.Snapshot
	Subscribe() (<-chan tasks.Snapshot, func())
	GetJobStats(ctx context.Context) ([]models.JobStats, error)
	StartMigration(ctx context.Context, jobID string, opts tasks.StartOptions) (tasks.StartResult, error)
	StopMigration(ctx context.Context, jobID string) (bool, error)
}

var _ Orchestrator = (*tasks.Orchestrator)(nil)

const shutdownTimeout = 5 * time.Second

// Server serves orchestrator state over HTTP.
type Server struct {
	orch    Orchestrator
	logger  *log.Logger
	origins []string
	handler http.Handler
}

// ServerOpts configures a [Server].
type ServerOpts struct {
	Logger *log.Logger
	// OriginPatterns are the websocket origins accepted besides the request host.
	OriginPatterns []string
}

// New creates a Server for orch.
func New(orch Orchestrator, opts ServerOpts) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	s := &Server{
		orch:    orch,
		logger:  shared.WithLogger(opts.Logger, "component", "server"),
		origins: opts.OriginPatterns,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}
