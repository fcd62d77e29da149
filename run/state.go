package run

import (
	"time"

	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

// Phase is the completion detector state of a run
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseSettling  Phase = "settling"
	PhaseFinalized Phase = "finalized"
	PhaseAborted   Phase = "aborted"
)

// Terminal reports whether no further events are processed in this phase
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseAborted
}

// State is the mutable state of one run. It is owned by the orchestrator.
type State struct {
	DispatchIndex int
	Suites        []types.SuiteRecord
	Outcomes      []types.Outcome
	LastError     string
	Phase         Phase
}

// NewState returns an empty running state
func NewState() *State {
	return &State{Phase: PhaseRunning}
}

// RegisterSuite appends a suite record in arrival order. Suite names are not
// required to be unique; records are tracked by position.
func (s *State) RegisterSuite(decl protocol.SuiteDeclared, now time.Time) types.SuiteRecord {
	ids := make([]string, len(decl.TestCaseIDs))
	copy(ids, decl.TestCaseIDs)
	record := types.SuiteRecord{
		SuiteName:    decl.SuiteName,
		TestCaseIDs:  ids,
		NumTestCases: len(ids),
		RegisteredAt: now,
	}
	s.Suites = append(s.Suites, record)
	return record
}

// CurrentSuite returns the suite registered at the current dispatch index
func (s *State) CurrentSuite() (types.SuiteRecord, bool) {
	if s.DispatchIndex < 0 || s.DispatchIndex >= len(s.Suites) {
		return types.SuiteRecord{}, false
	}
	return s.Suites[s.DispatchIndex], true
}

// SettlingSuite returns the suite that completed last while its settling
// window is still open
func (s *State) SettlingSuite() (types.SuiteRecord, bool) {
	i := s.DispatchIndex - 1
	if s.Phase != PhaseSettling || i < 0 || i >= len(s.Suites) {
		return types.SuiteRecord{}, false
	}
	return s.Suites[i], true
}

// ExpectedTotal sums the declared test cases of every registered suite
func (s *State) ExpectedTotal() int {
	total := 0
	for _, suite := range s.Suites {
		total += suite.NumTestCases
	}
	return total
}

// Complete reports whether every one of numArtifacts suites has signalled
// completion and the recorded outcomes exactly match the expected total.
func (s *State) Complete(numArtifacts int) bool {
	return s.DispatchIndex >= numArtifacts && len(s.Outcomes) == s.ExpectedTotal()
}

// Snapshot is a copy of the run state that is safe to hand to other goroutines
type Snapshot struct {
	DispatchIndex int
	Suites        []types.SuiteRecord
	Outcomes      []types.Outcome
	Phase         Phase
	ExpectedTotal int
}

// Snapshot copies the state
func (s *State) Snapshot() Snapshot {
	suites := make([]types.SuiteRecord, len(s.Suites))
	for i, suite := range s.Suites {
		suites[i] = suite
		suites[i].TestCaseIDs = append([]string(nil), suite.TestCaseIDs...)
	}
	outcomes := make([]types.Outcome, len(s.Outcomes))
	copy(outcomes, s.Outcomes)
	return Snapshot{
		DispatchIndex: s.DispatchIndex,
		Suites:        suites,
		Outcomes:      outcomes,
		Phase:         s.Phase,
		ExpectedTotal: s.ExpectedTotal(),
	}
}
