// package formatter renders migration stats (text table, CSV, JSON, YAML) and reads rule files (JSON, YAML)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
	"gopkg.in/yaml.v3"
)

// Format is an output or input encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user-supplied format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatCSV, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

var statsHeaders = []string{"#", "ID", "Name", "Status", "Rules", "Completed", "Failed", "Note"}

// WriteStats writes snap to w in the given format.
func WriteStats(w io.Writer, snap tasks.Snapshot, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = StatsToJSON(snap)
	case FormatYAML:
		data, err = StatsToYAML(snap)
	case FormatCSV:
		data, err = StatsToCSV(snap)
	case FormatText, "":
		data = []byte(StatsToText(snap))
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

// StatsToText renders snap as a table, one row per migration.
func StatsToText(snap tasks.Snapshot) string {
	if !snap.Known {
		return "Migration stats not loaded yet\n"
	}
	if len(snap.Stats) == 0 {
		return "No migrations\n"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(statsHeaders...).
		Rows(statsRows(snap.Stats)...)
	return t.String() + "\n"
}

// StatsToCSV converts snap to CSV with the same columns as [StatsToText].
func StatsToCSV(snap tasks.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(statsHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range statsRows(snap.Stats) {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// StatsToJSON encodes snap as indented JSON ({"known": ..., "migrations": [...]}).
func StatsToJSON(snap tasks.Snapshot) ([]byte, error) {
	if snap.Stats == nil {
		snap.Stats = []models.JobStats{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	return append(data, '\n'), nil
}

// StatsToYAML encodes snap as YAML using the JSON field names.
func StatsToYAML(snap tasks.Snapshot) ([]byte, error) {
	data, err := StatsToJSON(snap)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	return out, nil
}

func statsRows(stats []models.JobStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			strconv.Itoa(s.Number),
			s.ID,
			s.Name,
			string(s.Status),
			strconv.Itoa(s.Rules.Total),
			strconv.Itoa(s.Rules.Completed),
			strconv.Itoa(s.Rules.Failed),
			statsNote(s),
		})
	}
	return rows
}

func statsNote(s models.JobStats) string {
	switch {
	case s.IsStopping:
		return "stopping"
	case s.ExecutionError() != "":
		return s.ExecutionError()
	default:
		return s.Error
	}
}
