package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PrefsGet prints the value stored under the key argument.
func (r *Runner) PrefsGet(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	prefs, err := r.preferences()
	if err != nil {
		return err
	}

	value, err := prefs.Lookup(key)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", value)
}

// PrefsSet stores the value argument under the key argument.
//
// tracing_options must be a JSON object with an api_key.
func (r *Runner) PrefsSet(ctx context.Context, cmd *cli.Command) error {
	key, value := cmd.StringArg("key"), cmd.StringArg("value")
	if key == "" || value == "" {
		return fmt.Errorf("%w: key and value", shared.ErrMissingArgument)
	}

	if key == tasks.PrefTracingOptions {
		var opts models.TracingOptions
		if err := json.Unmarshal([]byte(value), &opts); err != nil {
			return fmt.Errorf("%w: tracing_options must be JSON: %v", shared.ErrInvalidArgument, err)
		}
		if opts.APIKey == "" {
			return fmt.Errorf("%w: tracing_options requires api_key", shared.ErrInvalidArgument)
		}
	}

	prefs, err := r.preferences()
	if err != nil {
		return err
	}
	if err := prefs.Set(key, value); err != nil {
		return err
	}

	r.logger.Debug("preference stored", "key", key)
	return r.writePlain("✓ %s set\n", key)
}

// PrefsDelete removes the preference named by the key argument.
func (r *Runner) PrefsDelete(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	prefs, err := r.preferences()
	if err != nil {
		return err
	}
	if err := prefs.Delete(key); err != nil {
		return err
	}
	return r.writePlain("✓ %s removed\n", key)
}

// PrefsList prints every stored preference.
//
// tracing_options values are masked in text output since they carry an API key.
func (r *Runner) PrefsList(ctx context.Context, cmd *cli.Command) error {
	prefs, err := r.preferences()
	if err != nil {
		return err
	}

	all, err := prefs.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(all, true)
	}

	if len(all) == 0 {
		return r.writePlain("No preferences set\n")
	}
	for _, p := range all {
		value := p.Value
		if p.Key == tasks.PrefTracingOptions {
			value = "(hidden)"
		}
		if err := r.writePlain("%s = %s\n", p.Key, value); err != nil {
			return err
		}
	}
	return nil
}
