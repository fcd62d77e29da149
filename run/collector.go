package run

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

// DuplicatePolicy decides what happens to a second outcome for a test case
// that already has one in the current suite
type DuplicatePolicy string

const (
	// DuplicatesAppend records every outcome. An agent that double-reports then
	// pushes the outcome count past the expected total and the run never completes.
	DuplicatesAppend DuplicatePolicy = "append"
	// DuplicatesReject drops repeated outcomes for the same test case
	DuplicatesReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy validates a policy name
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case DuplicatesAppend, DuplicatesReject:
		return p, nil
	case "":
		return DuplicatesAppend, nil
	default:
		return "", fmt.Errorf("invalid duplicate outcome policy %q, must be one of: %s, %s", s, DuplicatesAppend, DuplicatesReject)
	}
}

// DropReason explains why an outcome event was not recorded
type DropReason string

const (
	DropUnknownTestCase DropReason = "unknown_test_case"
	DropDuplicate       DropReason = "duplicate"
	DropOrphaned        DropReason = "orphaned"
)

// RecordResult describes what the collector did with one outcome event
type RecordResult struct {
	Event    protocol.Outcome
	Recorded []types.Outcome
	Buffered bool
	Late     bool // recorded against the suite that is settling
	Dropped  DropReason
}

type outcomeKey struct {
	suite    int
	testCase string
}

// Collector attributes outcome events to the suite at the current dispatch index.
//
// Outcomes that arrive before their suite is registered are buffered and
// replayed once it is, instead of being lost. While a completed suite is
// settling, outcomes for its test cases still count towards it.
type Collector struct {
	duplicates   DuplicatePolicy
	legacyErrors bool
	orphans      []protocol.Outcome
	seen         map[outcomeKey]struct{}
}

// NewCollector creates a collector. With legacyErrors set, an outcome without
// its own error message inherits the most recent agent error log.
func NewCollector(duplicates DuplicatePolicy, legacyErrors bool) *Collector {
	if duplicates == "" {
		duplicates = DuplicatesAppend
	}
	return &Collector{
		duplicates:   duplicates,
		legacyErrors: legacyErrors,
		seen:         make(map[outcomeKey]struct{}),
	}
}

// Record handles one outcome event against the current suite
func (c *Collector) Record(s *State, ev protocol.Outcome) RecordResult {
	index := s.DispatchIndex
	late := false
	suite, ok := s.CurrentSuite()
	if !ok || !suite.HasTestCase(ev.TestCaseID) {
		// the suite that just completed may still be settling, and the agent
		// may already have declared the next one
		if prev, settling := s.SettlingSuite(); settling && prev.HasTestCase(ev.TestCaseID) {
			suite, index, late = prev, s.DispatchIndex-1, true
		} else if !ok {
			c.orphans = append(c.orphans, ev)
			return RecordResult{Event: ev, Buffered: true}
		} else {
			return RecordResult{Event: ev, Dropped: DropUnknownTestCase}
		}
	}

	key := outcomeKey{suite: index, testCase: ev.TestCaseID}
	if _, dup := c.seen[key]; dup && c.duplicates == DuplicatesReject {
		return RecordResult{Event: ev, Late: late, Dropped: DropDuplicate}
	}
	c.seen[key] = struct{}{}

	errMsg := ev.ErrorMessage
	if errMsg == "" && c.legacyErrors {
		errMsg = s.LastError
	}

	result := RecordResult{Event: ev, Late: late}
	for _, id := range suite.TestCaseIDs {
		if id != ev.TestCaseID {
			continue
		}
		outcome := types.Outcome{
			SuiteName:    suite.SuiteName,
			TestCaseID:   id,
			Status:       types.ParseOutcomeStatus(ev.Result),
			ErrorMessage: errMsg,
		}
		s.Outcomes = append(s.Outcomes, outcome)
		result.Recorded = append(result.Recorded, outcome)
	}
	return result
}

// Replay records buffered orphan outcomes, in arrival order, once the current
// suite is registered. It does nothing while the suite is still missing.
func (c *Collector) Replay(s *State) []RecordResult {
	if len(c.orphans) == 0 {
		return nil
	}
	if _, ok := s.CurrentSuite(); !ok {
		return nil
	}
	pending := c.orphans
	c.orphans = nil

	results := make([]RecordResult, 0, len(pending))
	for _, ev := range pending {
		results = append(results, c.Record(s, ev))
	}
	return results
}

// DiscardOrphans drops buffered outcomes whose suite was never registered
func (c *Collector) DiscardOrphans() []protocol.Outcome {
	dropped := c.orphans
	c.orphans = nil
	return dropped
}

// Pending returns the number of buffered orphan outcomes
func (c *Collector) Pending() int {
	return len(c.orphans)
}
