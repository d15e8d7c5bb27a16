// Package output writes the Munin plugin protocol and the human status view.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/danpilch/cpu1sec/pkg/use"
)

// Format represents the output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or tsv)", s)
	}
}

// Status is what the status command reports about the sampler and its cache.
type Status struct {
	Hostname   string      `json:"hostname"`
	CachePath  string      `json:"cache_path"`
	Epoch      int64       `json:"epoch"`
	Age        string      `json:"age"`
	Stale      bool        `json:"stale"`
	SamplerPid int         `json:"sampler_pid"`
	Running    bool        `json:"sampler_running"`
	Checks     []use.Check `json:"checks"`
}

// Formatter handles output formatting.
type Formatter struct {
	format    Format
	writer    io.Writer
	sparkline *SparklineTracker
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
	}
}

// SetSparklineTracker enables sparkline tracking for watch mode.
func (f *Formatter) SetSparklineTracker(s *SparklineTracker) {
	f.sparkline = s
}

// Render outputs the status in the configured format.
func (f *Formatter) Render(st Status) error {
	if f.sparkline != nil {
		for _, c := range st.Checks {
			if c.Status != use.StatusUnknown {
				f.sparkline.Record(c.Resource, c.RawValue)
			}
		}
	}

	switch f.format {
	case FormatJSON:
		return f.renderJSON(st)
	case FormatTSV:
		return f.renderTSV(st)
	default:
		return f.renderTable(st)
	}
}

// renderJSON outputs the status as JSON.
func (f *Formatter) renderJSON(st Status) error {
	output := struct {
		Status
		Summary use.Summary `json:"summary"`
	}{
		Status:  st,
		Summary: use.Summarize(st.Checks),
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// renderTable outputs the status as a styled table.
func (f *Formatter) renderTable(st Status) error {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	statusStyles := map[use.Status]lipgloss.Style{
		use.StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true), // Green
		use.StatusWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true), // Yellow
		use.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),  // Red
		use.StatusUnknown: lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true),  // Gray
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Fprintln(f.writer, titleStyle.Render("CPU usage (1sec) on "+st.Hostname))
	fmt.Fprintln(f.writer, strings.Repeat("═", 60))

	sampler := statusStyles[use.StatusError].Render("not running")
	if st.Running {
		sampler = statusStyles[use.StatusOK].Render(fmt.Sprintf("running (pid %d)", st.SamplerPid))
	}
	fmt.Fprintf(f.writer, "Sampler: %s\n", sampler)

	sample := dim.Render("no sample cached")
	if st.Epoch > 0 {
		sample = fmt.Sprintf("%s (%s ago)", time.Unix(st.Epoch, 0).Format(time.RFC3339), st.Age)
		if st.Stale {
			sample += " " + statusStyles[use.StatusWarning].Render("STALE")
		}
	}
	fmt.Fprintf(f.writer, "Sample:  %s\n", sample)
	fmt.Fprintln(f.writer, dim.Render("Cache:   "+st.CachePath))
	fmt.Fprintln(f.writer)

	if len(st.Checks) == 0 {
		return nil
	}

	hasSparklines := f.sparkline != nil
	rows := make([][]string, len(st.Checks))
	for i, check := range st.Checks {
		statusStyle := statusStyles[check.Status]
		row := []string{
			check.Resource,
			check.Value,
			statusStyle.Render(strings.ToUpper(string(check.Status))),
			check.Description,
		}
		if hasSparklines {
			row = append(row, f.sparkline.Sparkline(check.Resource))
		}
		rows[i] = row
	}

	headers := []string{"CPU", "BUSY", "STATUS", "DETAIL"}
	if hasSparklines {
		headers = append(headers, "TREND")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	fmt.Fprintln(f.writer, t)

	summary := use.Summarize(st.Checks)
	fmt.Fprintln(f.writer)
	f.renderSummary(summary, statusStyles)
	return nil
}

// renderSummary outputs the summary line.
func (f *Formatter) renderSummary(summary use.Summary, styles map[use.Status]lipgloss.Style) {
	parts := []string{}

	if summary.Errors > 0 {
		parts = append(parts, styles[use.StatusError].Render(fmt.Sprintf("%d critical", summary.Errors)))
	}
	if summary.Warnings > 0 {
		parts = append(parts, styles[use.StatusWarning].Render(fmt.Sprintf("%d busy", summary.Warnings)))
	}
	if summary.Unknown > 0 {
		parts = append(parts, styles[use.StatusUnknown].Render(fmt.Sprintf("%d unknown", summary.Unknown)))
	}

	if len(parts) == 0 {
		fmt.Fprintln(f.writer, styles[use.StatusOK].Render("All CPUs below thresholds"))
	} else {
		fmt.Fprintf(f.writer, "Summary: %s\n", strings.Join(parts, ", "))
	}
}

// renderTSV outputs one row per CPU as tab-separated values.
func (f *Formatter) renderTSV(st Status) error {
	fmt.Fprintln(f.writer, "CPU\tEPOCH\tBUSY\tRAW_VALUE\tSTATUS\tDETAIL")

	for _, c := range st.Checks {
		fmt.Fprintf(f.writer, "%s\t%d\t%s\t%.4f\t%s\t%s\n",
			c.Resource, st.Epoch, c.Value, c.RawValue, c.Status, c.Description)
	}

	return nil
}
