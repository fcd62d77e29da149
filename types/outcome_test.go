package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcomeStatus(t *testing.T) {
	tests := []struct {
		result string
		want   OutcomeStatus
	}{
		{"passed", OutcomePassed},
		{"PASSED", OutcomePassed},
		{" passed ", OutcomePassed},
		{"failed", OutcomeFailed},
		{"skipped", OutcomeFailed},
		{"", OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOutcomeStatus(tt.result))
		})
	}
}

func TestSuiteRecord_HasTestCase(t *testing.T) {
	suite := SuiteRecord{SuiteName: "login", TestCaseIDs: []string{"t1", "t2"}, NumTestCases: 2}
	assert.True(t, suite.HasTestCase("t1"))
	assert.True(t, suite.HasTestCase("t2"))
	assert.False(t, suite.HasTestCase("t3"))
}

func TestSummarize(t *testing.T) {
	t.Run("mixed outcomes", func(t *testing.T) {
		s := Summarize([]Outcome{
			{TestCaseID: "t1", Status: OutcomePassed},
			{TestCaseID: "t2", Status: OutcomeFailed},
		})
		require.Equal(t, Summary{Total: 2, Passed: 1, Failed: 1}, s)
		assert.InDelta(t, 50.0, s.PassedPercent(), 0.001)
		assert.InDelta(t, 50.0, s.FailedPercent(), 0.001)
	})

	t.Run("no outcomes", func(t *testing.T) {
		s := Summarize(nil)
		assert.Equal(t, 0, s.Total)
		assert.Zero(t, s.PassedPercent())
		assert.Zero(t, s.FailedPercent())
	})
}
