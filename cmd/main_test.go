package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	relay "github.com/ethereum-optimism/infra/op-suiterelay"
	"github.com/ethereum-optimism/infra/op-suiterelay/exitcodes"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcodes.Success},
		{"runtime", relay.NewRuntimeError(errors.New("listen failed")), exitcodes.RuntimeErr},
		{"aborted", relay.NewAbortedError("manual disconnect"), exitcodes.Aborted},
		{"test failure", relay.NewTestFailureError("1 failed"), exitcodes.TestFailure},
		{"joined", errors.Join(errors.New("stop"), relay.NewAbortedError("manual disconnect")), exitcodes.Aborted},
		{"wrapped runtime", fmt.Errorf("outer: %w", relay.NewRuntimeError(errors.New("boom"))), exitcodes.RuntimeErr},
		{"other", errors.New("unexpected"), exitcodes.TestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
