package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "suite declared",
			raw:  `{"event":"suite-declared","data":{"suiteName":"login","testCaseIds":["t1","t2"]}}`,
			want: &SuiteDeclared{SuiteName: "login", TestCaseIDs: []string{"t1", "t2"}},
		},
		{
			name: "legacy suite declared",
			raw:  `{"event":"infoTestSuite","data":{"testSuite":"login","testCases":["t1"]}}`,
			want: &SuiteDeclared{SuiteName: "login", TestCaseIDs: []string{"t1"}},
		},
		{
			name: "log event",
			raw:  `{"event":"log-event","data":{"severity":"error","message":"boom"}}`,
			want: &LogEvent{Severity: SeverityError, Message: "boom"},
		},
		{
			name: "legacy log event",
			raw:  `{"event":"logger","data":{"type":"debug","mess":"hello"}}`,
			want: &LogEvent{Severity: SeverityDebug, Message: "hello"},
		},
		{
			name: "outcome with error",
			raw:  `{"event":"outcome","data":{"testcaseId":"t1","result":"failed","errorMessage":"element not found"}}`,
			want: &Outcome{TestCaseID: "t1", Result: "failed", ErrorMessage: "element not found"},
		},
		{
			name: "legacy outcome",
			raw:  `{"event":"result","data":{"testcase":"t2","result":"passed"}}`,
			want: &Outcome{TestCaseID: "t2", Result: "passed"},
		},
		{
			name: "suite completed without data",
			raw:  `{"event":"suite-completed"}`,
			want: &SuiteCompleted{},
		},
		{
			name: "legacy suite completed with empty data",
			raw:  `{"event":"doneSuite","data":{}}`,
			want: &SuiteCompleted{},
		},
		{
			name: "suite results complete",
			raw:  `{"event":"suite-results-complete","data":{"suiteName":"login","testCaseIds":["t1"]}}`,
			want: &SuiteResultsComplete{SuiteName: "login", TestCaseIDs: []string{"t1"}},
		},
		{
			name: "manual disconnect",
			raw:  `{"event":"manual-disconnection","data":null}`,
			want: &ManualDisconnect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := Decode([]byte(`{not json`))
		require.Error(t, err)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := Decode([]byte(`{"data":{}}`))
		require.ErrorIs(t, err, ErrEmptyEvent)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := Decode([]byte(`{"event":"bogus"}`))
		require.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("artifact push is not an inbound message", func(t *testing.T) {
		_, err := Decode([]byte(`{"event":"artifact-push","data":{"data":"<html/>"}}`))
		require.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := Decode([]byte(`{"event":"outcome","data":"nope"}`))
		require.Error(t, err)
	})
}

func TestEncodeArtifactPush(t *testing.T) {
	aux := map[string]AuxData{"users.csv": {Content: "a,b", Kind: "csv"}}

	t.Run("current names", func(t *testing.T) {
		raw, err := EncodeArtifactPush(ArtifactPush{Data: "<html/>", AuxData: aux}, false)
		require.NoError(t, err)

		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "artifact-push", frame["event"])
		data := frame["data"].(map[string]interface{})
		assert.Equal(t, "<html/>", data["data"])
		assert.Contains(t, data, "auxData")
	})

	t.Run("aux data omitted", func(t *testing.T) {
		raw, err := EncodeArtifactPush(ArtifactPush{Data: "<html/>"}, false)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "auxData")
	})

	t.Run("legacy names", func(t *testing.T) {
		raw, err := EncodeArtifactPush(ArtifactPush{Data: "<html/>", AuxData: aux}, true)
		require.NoError(t, err)

		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "sendHtml", frame["event"])
		data := frame["data"].(map[string]interface{})
		files := data["datafiles"].(map[string]interface{})
		users := files["users.csv"].(map[string]interface{})
		assert.Equal(t, "csv", users["type"])
		assert.Equal(t, "a,b", users["content"])
	})
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, EventOutcome, Canonical(LegacyOutcome))
	assert.Equal(t, EventOutcome, Canonical(EventOutcome))
	assert.Equal(t, EventSuiteResultsComplete, Canonical(EventSuiteResultsComplete))
}
