package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/urfave/cli/v3"
)

// TelemetryList prints the most recent telemetry events, newest first.
func (r *Runner) TelemetryList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", shared.ErrInvalidArgument)
	}

	repo, err := r.telemetryRepo()
	if err != nil {
		return err
	}

	records, err := repo.List(limit)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		return r.writePlain("No telemetry events\n")
	}
	for _, rec := range records {
		if err := r.writePlain("#%d  %s  %-18s %s\n",
			rec.Sequence, rec.Time.Format(time.RFC3339), rec.Type, rec.MigrationID); err != nil {
			return err
		}
	}
	return nil
}
