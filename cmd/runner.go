package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rulemig/internal/repositories"
	"github.com/desertthunder/rulemig/internal/services"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
	"github.com/desertthunder/rulemig/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and orchestrator are created on first use so that commands which need
// neither (setup config) never touch them.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	api    services.JobAPI

	db        *sql.DB
	ownsDB    bool
	prefs     *repositories.PreferenceRepository
	telemetry *repositories.TelemetryRepository
	orch      *tasks.Orchestrator
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	API    services.JobAPI // built from Config when nil
	DB     *sql.DB         // opened from Config when nil; must already be migrated
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		api:    opts.API,
		db:     opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, prefsCommand, migrationsCommand, telemetryCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Configure loads the config file named by --config, applies environment overrides and sets the log level.
//
// A missing file keeps the current configuration.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.logger.Debug("loaded config", "path", path)
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	r.config.ApplyEnv()
	if err := r.config.Validate(); err != nil {
		return ctx, err
	}

	level, err := shared.ParseLogLevel(r.config.LogLevel)
	if err != nil {
		return ctx, err
	}
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// Close stops the orchestrator and closes the database if the runner opened it.
func (r *Runner) Close(ctx context.Context, cmd *cli.Command) error {
	if r.orch != nil {
		r.orch.Close()
		r.orch = nil
	}
	if r.ownsDB && r.db != nil {
		err := r.db.Close()
		r.db, r.ownsDB, r.prefs, r.telemetry = nil, false, nil, nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db, r.ownsDB = db, true
	return db, nil
}

func (r *Runner) preferences() (*repositories.PreferenceRepository, error) {
	if r.prefs != nil {
		return r.prefs, nil
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.prefs = repositories.NewPreferenceRepository(db)
	return r.prefs, nil
}

func (r *Runner) telemetryRepo() (*repositories.TelemetryRepository, error) {
	if r.telemetry != nil {
		return r.telemetry, nil
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.telemetry = repositories.NewTelemetryRepository(db, r.logger)
	return r.telemetry, nil
}

// orchestrator builds the orchestrator once per command run. Polling starts immediately.
//
// Without an injected API an API key is required.
func (r *Runner) orchestrator(ctx context.Context) (*tasks.Orchestrator, error) {
	if r.orch != nil {
		return r.orch, nil
	}

	prefs, err := r.preferences()
	if err != nil {
		return nil, err
	}
	telemetry, err := r.telemetryRepo()
	if err != nil {
		return nil, err
	}

	spaceID := tasks.ResolveSpaceID(prefs, r.config.API.SpaceID)
	api := r.api
	if api == nil {
		if r.config.API.APIKey == "" {
			return nil, fmt.Errorf("%w: set api.api_key or RULEMIG_API_KEY", shared.ErrMissingCredentials)
		}
		api = services.NewMigrationService(services.MigrationServiceOpts{
			BaseURL: r.config.API.BaseURL,
			SpaceID: spaceID,
			APIKey:  r.config.API.APIKey,
			Timeout: r.config.API.Timeout(),
		})
	}

	orch, err := tasks.NewOrchestrator(ctx, tasks.OrchestratorOpts{
		API:                  api,
		Preferences:          prefs,
		Notifier:             ui.NewTerminalNotifier(r.output, ui.DefaultPalette()),
		Telemetry:            telemetry,
		RequiredCapabilities: r.config.Capabilities.Required,
		Capabilities:         tasks.StaticCapabilities(r.config.Capabilities.Granted),
		BatchSize:            r.config.Migrations.BatchSize,
		RateLimit:            r.config.API.RateLimit,
		PollInterval:         r.config.Migrations.PollInterval(),
		SpaceID:              spaceID,
		Logger:               r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.orch = orch
	return orch, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
