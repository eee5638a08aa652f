package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	if err := r.writePlain("✓ Configuration written to %s\n", path); err != nil {
		return err
	}
	return r.writePlain("Set api.base_url and api.api_key (or RULEMIG_API_KEY) before creating migrations.\n")
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Database
	if path := cmd.String("path"); path != "" {
		cfg.Path = path
	}

	r.logger.Info("initializing database", "path", cfg.Path)

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", cfg.Path)
	return r.writePlain("✓ Database ready at %s (schema version %d)\n", cfg.Path, version)
}

// SetupStatus prints the schema version of the configured database.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.schemaDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	return r.writePlain("schema version: %d\n", version)
}

// SetupRollback reverts the most recent schema migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.schemaDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	r.logger.Info("rolled back schema migration", "version", version)
	return r.writePlain("schema version: %d\n", version)
}

// schemaDatabase opens the configured database without applying pending migrations.
func (r *Runner) schemaDatabase() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, func() { db.Close() }, nil
}
