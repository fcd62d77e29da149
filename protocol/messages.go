package protocol

import "encoding/json"

// AuxData is one auxiliary data file shipped alongside an artifact
type AuxData struct {
	Content string `json:"content"`
	Kind    string `json:"type"`
}

// ArtifactPush is the server→agent message carrying one test-suite artifact
type ArtifactPush struct {
	Data    string             `json:"data"`
	AuxData map[string]AuxData `json:"auxData,omitempty"`
}

type legacyArtifactPush struct {
	Data      string             `json:"data"`
	Datafiles map[string]AuxData `json:"datafiles,omitempty"`
}

// EncodeArtifactPush encodes an artifact push, using the legacy event and key
// names when legacy is set.
func EncodeArtifactPush(push ArtifactPush, legacy bool) ([]byte, error) {
	if legacy {
		return Encode(LegacyArtifactPush, legacyArtifactPush{Data: push.Data, Datafiles: push.AuxData})
	}
	return Encode(EventArtifactPush, push)
}

// SuiteDeclared announces the test cases parsed from the most recent artifact
type SuiteDeclared struct {
	SuiteName   string   `json:"suiteName"`
	TestCaseIDs []string `json:"testCaseIds"`
}

func (*SuiteDeclared) Event() Event { return EventSuiteDeclared }

func (s *SuiteDeclared) UnmarshalJSON(b []byte) error {
	var raw struct {
		SuiteName   string   `json:"suiteName"`
		TestCaseIDs []string `json:"testCaseIds"`
		TestSuite   string   `json:"testSuite"`
		TestCases   []string `json:"testCases"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.SuiteName = firstNonEmpty(raw.SuiteName, raw.TestSuite)
	s.TestCaseIDs = raw.TestCaseIDs
	if s.TestCaseIDs == nil {
		s.TestCaseIDs = raw.TestCases
	}
	return nil
}

// Severity classifies an agent log line
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityDebug   Severity = "debug"
	SeverityVerbose Severity = "verbose"
	SeverityInfo    Severity = "info"
)

// LogEvent is a log line emitted by the agent
type LogEvent struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (*LogEvent) Event() Event { return EventLog }

func (l *LogEvent) UnmarshalJSON(b []byte) error {
	var raw struct {
		Severity Severity `json:"severity"`
		Message  string   `json:"message"`
		Type     Severity `json:"type"`
		Mess     string   `json:"mess"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.Severity = Severity(firstNonEmpty(string(raw.Severity), string(raw.Type)))
	l.Message = firstNonEmpty(raw.Message, raw.Mess)
	return nil
}

// Outcome reports the result of a single test case
type Outcome struct {
	TestCaseID   string `json:"testcaseId"`
	Result       string `json:"result"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (*Outcome) Event() Event { return EventOutcome }

func (o *Outcome) UnmarshalJSON(b []byte) error {
	var raw struct {
		TestCaseID   string `json:"testcaseId"`
		Testcase     string `json:"testcase"`
		Result       string `json:"result"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	o.TestCaseID = firstNonEmpty(raw.TestCaseID, raw.Testcase)
	o.Result = raw.Result
	o.ErrorMessage = raw.ErrorMessage
	return nil
}

// SuiteCompleted signals the agent finished executing the current suite
type SuiteCompleted struct{}

func (*SuiteCompleted) Event() Event { return EventSuiteCompleted }

// SuiteResultsComplete is the explicit form of SuiteCompleted: the agent lists
// the test cases it concluded, so no settling delay is needed.
type SuiteResultsComplete struct {
	SuiteName   string   `json:"suiteName"`
	TestCaseIDs []string `json:"testCaseIds"`
}

func (*SuiteResultsComplete) Event() Event { return EventSuiteResultsComplete }

// ManualDisconnect asks the relay to end the run immediately
type ManualDisconnect struct{}

func (*ManualDisconnect) Event() Event { return EventManualDisconnect }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
