package reporting

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

type suiteSummary struct {
	Name      string `json:"name"`
	TestCases int    `json:"testCases"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
}

type outcomeEntry struct {
	Suite        string              `json:"suite"`
	TestCase     string              `json:"testCase"`
	Status       types.OutcomeStatus `json:"status"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
}

// summaryDocument is the JSON export of a run
type summaryDocument struct {
	RunID         string         `json:"runId"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
	Duration      string         `json:"duration"`
	Total         int            `json:"total"`
	Passed        int            `json:"passed"`
	Failed        int            `json:"failed"`
	PassedPercent float64        `json:"passedPercent"`
	FailedPercent float64        `json:"failedPercent"`
	Suites        []suiteSummary `json:"suites"`
	Outcomes      []outcomeEntry `json:"outcomes"`
}

func newSummaryDocument(report types.Report) summaryDocument {
	s := report.Summary()
	doc := summaryDocument{
		RunID:         report.RunID,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Duration:      formatDuration(report.FinishedAt.Sub(report.StartedAt)),
		Total:         s.Total,
		Passed:        s.Passed,
		Failed:        s.Failed,
		PassedPercent: s.PassedPercent(),
		FailedPercent: s.FailedPercent(),
		Suites:        make([]suiteSummary, len(report.Suites)),
		Outcomes:      make([]outcomeEntry, len(report.Outcomes)),
	}

	// suites are positional; outcomes carry only the name, so counts go to the
	// first suite with a matching name that still has room
	for i, suite := range report.Suites {
		doc.Suites[i] = suiteSummary{Name: suite.SuiteName, TestCases: suite.NumTestCases}
	}
	for i, o := range report.Outcomes {
		doc.Outcomes[i] = outcomeEntry{
			Suite:        o.SuiteName,
			TestCase:     o.TestCaseID,
			Status:       o.Status,
			ErrorMessage: o.ErrorMessage,
		}
		for j := range doc.Suites {
			ss := &doc.Suites[j]
			if ss.Name != o.SuiteName || ss.Passed+ss.Failed >= ss.TestCases {
				continue
			}
			if o.Status == types.OutcomePassed {
				ss.Passed++
			} else {
				ss.Failed++
			}
			break
		}
	}
	return doc
}

func writeExecutionCSV(path string, report types.Report) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Test Suite", "Test Case", "Status", "Error Message"})
	for _, o := range report.Outcomes {
		t.AppendRow(table.Row{o.SuiteName, o.TestCaseID, o.Status, o.ErrorMessage})
	}
	if err := os.WriteFile(path, []byte(t.RenderCSV()+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeSummaryJSON(path string, report types.Report) error {
	data, err := json.MarshalIndent(newSummaryDocument(report), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeSummaryHTML(path string, report types.Report) error {
	tmpl, err := template.ParseFS(templateFS, "templates/summary.html.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse summary template: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := tmpl.Execute(f, newSummaryDocument(report)); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return nil
}
