package main

import (
	"context"

	"github.com/desertthunder/rulemig/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the status server until the context is canceled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	srv := server.New(orch, server.ServerOpts{Logger: r.logger})
	return srv.ListenAndServe(ctx, r.listenAddr(cmd.String("host"), cmd.Int("port")))
}

// listenAddr applies the --host and --port overrides to the configured server address.
func (r *Runner) listenAddr(host string, port int) string {
	cfg := r.config.Server
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	return cfg.Addr()
}
