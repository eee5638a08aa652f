package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	tu "github.com/desertthunder/rulemig/internal/testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestRunner returns a runner backed by an in-memory database and api, writing to the returned buffer.
func newTestRunner(t *testing.T, api *tu.FakeJobAPI) (*Runner, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		API:    api,
		DB:     newTestDB(t),
		Logger: log.New(&bytes.Buffer{}),
		Output: output,
	})
	return runner, output
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	argv := append([]string{"rulemig", "--config", filepath.Join(t.TempDir(), "missing.toml")}, args...)
	return r.root().Run(context.Background(), argv)
}

func writeRulesFile(t *testing.T, rules []models.RuleDescriptor) string {
	t.Helper()
	data, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("failed to marshal rules: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			api := &tu.FakeJobAPI{}
			db := newTestDB(t)

			runner := NewRunner(RunnerOpts{
				Config: config,
				API:    api,
				DB:     db,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.db != db || runner.ownsDB {
				t.Error("expected provided database to be used and not owned")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "prefs", "migrations", "telemetry", "serve"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("Configure", func(t *testing.T) {
		t.Run("loads config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			content := "log_level = \"warn\"\n[api]\nbase_url = \"http://kibana:5601\"\n[migrations]\nbatch_size = 10\n"
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner, _ := newTestRunner(t, &tu.FakeJobAPI{})
			if err := runner.root().Run(context.Background(), []string{"rulemig", "--config", path, "prefs", "list"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if runner.config.Migrations.BatchSize != 10 {
				t.Errorf("expected batch size 10, got %d", runner.config.Migrations.BatchSize)
			}
			if runner.config.Migrations.PollIntervalSeconds != 20 {
				t.Errorf("expected default poll interval to be kept, got %d", runner.config.Migrations.PollIntervalSeconds)
			}
			if runner.logger.GetLevel() != log.WarnLevel {
				t.Errorf("expected warn level, got %v", runner.logger.GetLevel())
			}
		})

		t.Run("verbose overrides log level", func(t *testing.T) {
			runner, _ := newTestRunner(t, &tu.FakeJobAPI{})
			if err := run(t, runner, "--verbose", "prefs", "list"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.logger.GetLevel() != log.DebugLevel {
				t.Errorf("expected debug level, got %v", runner.logger.GetLevel())
			}
		})

		t.Run("verbose still runs the command", func(t *testing.T) {
			runner, output := newTestRunner(t, &tu.FakeJobAPI{})
			path := filepath.Join(t.TempDir(), "config.toml")

			argv := []string{"rulemig", "--verbose", "--config", path, "setup", "config"}
			if err := runner.root().Run(context.Background(), argv); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Errorf("expected config file to be written: %v", err)
			}
			if strings.Contains(output.String(), "version") {
				t.Errorf("expected command output instead of version, got %q", output.String())
			}
		})

		t.Run("rejects invalid config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[migrations]\nbatch_size = 0\n"), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner, _ := newTestRunner(t, &tu.FakeJobAPI{})
			err := runner.root().Run(context.Background(), []string{"rulemig", "--config", path, "prefs", "list"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("rejects malformed config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("not = [valid"), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner, _ := newTestRunner(t, &tu.FakeJobAPI{})
			err := runner.root().Run(context.Background(), []string{"rulemig", "--config", path, "prefs", "list"})
			if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
				t.Errorf("expected parse error, got %v", err)
			}
		})
	})

	t.Run("Close", func(t *testing.T) {
		t.Run("keeps a provided database open", func(t *testing.T) {
			runner, _ := newTestRunner(t, &tu.FakeJobAPI{})
			if err := runner.Close(context.Background(), nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := runner.db.Ping(); err != nil {
				t.Errorf("expected database to stay open, got %v", err)
			}
		})

		t.Run("closes an opened database", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "rulemig.db")
			runner := NewRunner(RunnerOpts{Config: config, Logger: log.New(&bytes.Buffer{}), Output: &bytes.Buffer{}})

			if _, err := runner.database(); err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			if err := runner.Close(context.Background(), nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.db != nil || runner.ownsDB {
				t.Error("expected runner to drop the closed database")
			}
		})
	})

	t.Run("listenAddr", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		runner.config.Server = shared.ServerConfig{Host: "127.0.0.1", Port: 3000}

		tests := []struct {
			host string
			port int
			want string
		}{
			{"", 0, "127.0.0.1:3000"},
			{"0.0.0.0", 0, "0.0.0.0:3000"},
			{"", 8080, "127.0.0.1:8080"},
			{"::1", 9000, "[::1]:9000"},
		}
		for _, tt := range tests {
			if got := runner.listenAddr(tt.host, tt.port); got != tt.want {
				t.Errorf("listenAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
			}
		}
	})
}
