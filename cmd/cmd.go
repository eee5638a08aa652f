// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func (r *Runner) root() *cli.Command {
	return &cli.Command{
		Name:    "rulemig",
		Usage:   "Migrate SIEM detection rules through the rule migration service",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Configure,
		After:    r.Close,
		Commands: r.register(),
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Database path, overrides database.path",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "Print the applied schema version",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent schema migration",
				Action: r.SetupRollback,
			},
		},
	}
}

func prefsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "prefs",
		Aliases: []string{"pref"},
		Usage:   "Manage stored preferences (connector_id, tracing_options, space_id)",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print a preference value",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
				},
				Action: r.PrefsGet,
			},
			{
				Name:  "set",
				Usage: "Store a preference value",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
					&cli.StringArg{Name: "value"},
				},
				Action: r.PrefsSet,
			},
			{
				Name:  "delete",
				Usage: "Remove a preference",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
				},
				Action: r.PrefsDelete,
			},
			{
				Name:  "list",
				Usage: "List all preferences",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PrefsList,
			},
		},
	}
}

func migrationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "migrations",
		Aliases: []string{"mig"},
		Usage:   "Create, start and monitor rule migrations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Submit a JSON or YAML rules file as a new migration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Rules file (.json, .yaml or .yml)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Append to an existing migration instead of creating one",
					},
				},
				Action: r.MigrationsCreate,
			},
			{
				Name:  "start",
				Usage: "Start or restart a migration",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "retry",
						Usage: "Reprocess only 'failed' or 'not_fully_translated' rules",
					},
					&cli.BoolFlag{
						Name:  "skip-prebuilt",
						Usage: "Skip matching against prebuilt rules",
					},
				},
				Action: r.MigrationsStart,
			},
			{
				Name:  "stop",
				Usage: "Stop a running migration",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.MigrationsStop,
			},
			{
				Name:  "stats",
				Usage: "Refresh and print the stats of every migration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"o"},
						Usage:   "Output format: text, csv, json or yaml",
						Value:   "text",
					},
				},
				Action: r.MigrationsStats,
			},
			{
				Name:  "watch",
				Usage: "Print every published snapshot until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "until-idle",
						Usage: "Exit once polling stops because no migration is active",
					},
				},
				Action: r.MigrationsWatch,
			},
		},
	}
}

func telemetryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "telemetry",
		Usage: "Inspect recorded telemetry events",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the most recent events",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of events to return",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TelemetryList,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve migration stats over HTTP and websocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host, overrides server.host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port, overrides server.port",
			},
		},
		Action: r.Serve,
	}
}
