package types

import (
	"strings"
	"time"
)

// OutcomeStatus represents the reported state of a single test case
type OutcomeStatus string

const (
	OutcomePassed OutcomeStatus = "PASSED"
	OutcomeFailed OutcomeStatus = "FAILED"
)

// ParseOutcomeStatus maps an agent result string onto an OutcomeStatus.
// Only "passed" counts as a pass; anything else the agent reports is a failure.
func ParseOutcomeStatus(result string) OutcomeStatus {
	if strings.EqualFold(strings.TrimSpace(result), "passed") {
		return OutcomePassed
	}
	return OutcomeFailed
}

// SuiteRecord captures a suite the agent declared after parsing one artifact
type SuiteRecord struct {
	SuiteName    string
	TestCaseIDs  []string
	NumTestCases int
	RegisteredAt time.Time
}

// HasTestCase reports whether id is one of the suite's declared test cases
func (s SuiteRecord) HasTestCase(id string) bool {
	for _, tc := range s.TestCaseIDs {
		if tc == id {
			return true
		}
	}
	return false
}

// Outcome captures the reported result of one test case
type Outcome struct {
	SuiteName    string
	TestCaseID   string
	Status       OutcomeStatus
	ErrorMessage string
}

// Summary aggregates outcome counts for display
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// Summarize counts passed and failed outcomes
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Total++
		if o.Status == OutcomePassed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// PassedPercent returns the share of passed outcomes, or 0 when there are none
func (s Summary) PassedPercent() float64 {
	return percent(s.Passed, s.Total)
}

// FailedPercent returns the share of failed outcomes, or 0 when there are none
func (s Summary) FailedPercent() float64 {
	return percent(s.Failed, s.Total)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// Report is the read-only view of a finished run handed to the finalizer
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Suites     []SuiteRecord
	Outcomes   []Outcome
	Verbose    bool
}

// Summary returns the outcome counts of the report
func (r Report) Summary() Summary {
	return Summarize(r.Outcomes)
}
