package relay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypes(t *testing.T) {
	base := errors.New("port in use")

	runtimeErr := NewRuntimeError(base)
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(fmt.Errorf("failed to start: %w", runtimeErr)))
	assert.ErrorIs(t, runtimeErr, base)
	assert.Equal(t, "runtime error: port in use", runtimeErr.Error())

	testErr := NewTestFailureError("1 failed")
	assert.True(t, IsTestFailureError(errors.Join(errors.New("failed to stop"), testErr)))
	assert.False(t, IsRuntimeError(testErr))

	abortErr := NewAbortedError("manual disconnect")
	assert.True(t, IsAbortedError(abortErr))
	assert.False(t, IsTestFailureError(abortErr))
	assert.Equal(t, "run aborted: manual disconnect", abortErr.Error())

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
	assert.False(t, IsAbortedError(nil))
}
