// Package reporting summarizes a finished run on the console and, when a run
// directory is configured, exports it as CSV, JSON and HTML.
package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

const (
	ExecutionFile = "execution.csv"
	SummaryFile   = "summary.json"
	HTMLFile      = "summary.html"
)

// RunDirectory returns the directory a run's files are written to
func RunDirectory(reportDir string, startedAt time.Time) string {
	return filepath.Join(reportDir, strconv.FormatInt(startedAt.UnixMilli(), 10))
}

// Config contains reporter configuration
type Config struct {
	Out    io.Writer // console output, defaults to stdout
	RunDir string    // optional; no files are written when empty
	Log    log.Logger
}

// Reporter finalizes a run by printing and exporting its outcomes
type Reporter struct {
	out    io.Writer
	runDir string
	log    log.Logger
}

// NewReporter creates a reporter
func NewReporter(cfg Config) *Reporter {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Reporter{
		out:    cfg.Out,
		runDir: cfg.RunDir,
		log:    cfg.Log,
	}
}

// Finalize prints the outcome and summary tables and writes the report files
func (r *Reporter) Finalize(ctx context.Context, report types.Report) error {
	r.log.Info("Printing results...")
	r.printOutcomes(report)
	r.printSummary(report)
	if report.Verbose {
		r.printSuites(report)
	}

	if r.runDir == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := writeExecutionCSV(filepath.Join(r.runDir, ExecutionFile), report); err != nil {
		return err
	}
	if err := writeSummaryJSON(filepath.Join(r.runDir, SummaryFile), report); err != nil {
		return err
	}
	if err := writeSummaryHTML(filepath.Join(r.runDir, HTMLFile), report); err != nil {
		return err
	}
	r.log.Info("Wrote run report", "dir", r.runDir)
	return nil
}

func (r *Reporter) printOutcomes(report types.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(report.FinishedAt.Sub(report.StartedAt))))

	header := table.Row{"#", "Test Suite", "Test Case", "Status"}
	if report.Verbose {
		header = append(header, "Error Message")
	}
	t.AppendHeader(header)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Test Suite", AutoMerge: true},
		{Name: "Error Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, o := range report.Outcomes {
		row := table.Row{i + 1, o.SuiteName, o.TestCaseID, o.Status}
		if report.Verbose {
			row = append(row, o.ErrorMessage)
		}
		t.AppendRow(row)
	}

	t.SetRowPainter(func(row table.Row) text.Colors {
		if len(row) < 4 {
			return nil
		}
		switch row[3] {
		case types.OutcomePassed:
			return text.Colors{text.FgGreen}
		case types.OutcomeFailed:
			return text.Colors{text.FgRed}
		}
		return nil
	})
	t.Render()
}

func (r *Reporter) printSummary(report types.Report) {
	s := report.Summary()
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Summary")
	t.AppendHeader(table.Row{"", "Count", "Percent"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Count", Align: text.AlignRight},
		{Name: "Percent", Align: text.AlignRight},
	})
	t.AppendRow(table.Row{"Total", s.Total, "-"})
	t.AppendRow(table.Row{"Passed", s.Passed, formatPercent(s.PassedPercent(), s.Total)})
	t.AppendRow(table.Row{"Failed", s.Failed, formatPercent(s.FailedPercent(), s.Total)})

	if s.Failed > 0 {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Render()
}

func (r *Reporter) printSuites(report types.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Suites")
	t.AppendHeader(table.Row{"#", "Test Suite", "Test Cases", "Registered"})
	for i, suite := range report.Suites {
		t.AppendRow(table.Row{i + 1, suite.SuiteName, suite.NumTestCases, suite.RegisteredAt.Format(time.RFC3339)})
	}
	t.Render()
}

func formatPercent(p float64, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", p)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
