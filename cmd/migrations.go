package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/rulemig/internal/formatter"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// idleCheckInterval is how often watch --until-idle checks whether polling stopped.
const idleCheckInterval = 500 * time.Millisecond

// MigrationsCreate submits the rules of --file as a new migration, or appends them to --id.
func (r *Runner) MigrationsCreate(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	rules, err := formatter.ReadRulesFile(path)
	if err != nil {
		return err
	}

	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("submitting rules", "file", path, "rules", len(rules))
	id, err := orch.CreateMigration(ctx, rules, cmd.String("id"))
	if err != nil {
		if id != "" {
			if werr := r.writePlain("Migration %s was created but not every rule was submitted\n", id); werr != nil {
				r.logger.Warn("failed to report partial submission", "migration_id", id, "error", werr)
			}
		}
		return err
	}

	return r.writePlain("✓ Migration %s: %d rules submitted\n", id, len(rules))
}

// MigrationsStart starts the migration named by the id argument.
//
// Unmet preconditions are rendered by the terminal notifier and do not fail the command.
func (r *Runner) MigrationsStart(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: migration id", shared.ErrMissingArgument)
	}

	retry, err := models.ParseRetryFilter(cmd.String("retry"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	result, err := orch.StartMigration(ctx, id, tasks.StartOptions{
		Retry:                     retry,
		SkipPrebuiltRulesMatching: cmd.Bool("skip-prebuilt"),
	})
	if err != nil {
		return err
	}

	switch result.Reason {
	case tasks.ReasonNone:
		return r.writePlain("✓ Migration %s started\n", id)
	case tasks.ReasonNotStarted:
		return r.writePlain("Migration %s was not started by the service\n", id)
	default:
		r.logger.Debug("start skipped", "migration_id", id, "reason", result.Reason)
		return nil
	}
}

// MigrationsStop stops the migration named by the id argument.
func (r *Runner) MigrationsStop(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: migration id", shared.ErrMissingArgument)
	}

	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	stopped, err := orch.StopMigration(ctx, id)
	if err != nil {
		return err
	}
	if !stopped {
		return r.writePlain("Migration %s was not stopped by the service\n", id)
	}
	return r.writePlain("✓ Migration %s stopping\n", id)
}

// MigrationsStats refreshes the stats of every migration and prints them in --format.
func (r *Runner) MigrationsStats(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	if _, err := orch.GetJobStats(ctx); err != nil {
		return err
	}
	return formatter.WriteStats(r.output, orch.Latest(), format)
}

// MigrationsWatch prints every published snapshot until the context is canceled.
//
// With --until-idle it returns once the poll loop has stopped.
func (r *Runner) MigrationsWatch(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	untilIdle := cmd.Bool("until-idle")
	snapshots, cancel := orch.Subscribe()
	defer cancel()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if !snap.Known {
				continue
			}
			if err := r.writePlain("%s\n", formatter.StatsToText(snap)); err != nil {
				return err
			}
		case <-ticker.C:
			if untilIdle && orch.Latest().Known && !orch.Polling() {
				return nil
			}
		}
	}
}
