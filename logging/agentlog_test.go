package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
)

func TestAgentLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	l, err := NewAgentLog(dir)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, l.Write(protocol.SeverityError, "\x1b[31mboom\x1b[0m\n"))
	require.NoError(t, l.Write("", "plain"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, AgentLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-02T03:04:05Z [ERROR] boom", lines[0])
	assert.Equal(t, "2024-01-02T03:04:05Z [INFO] plain", lines[1])
}

func TestAgentLog_RequiresDir(t *testing.T) {
	_, err := NewAgentLog("")
	assert.Error(t, err)
}

func TestAsyncFile_WriteAfterClose(t *testing.T) {
	af, err := NewAsyncFile(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	require.NoError(t, af.Write([]byte("a")))
	require.NoError(t, af.Close())
	assert.Error(t, af.Write([]byte("b")))
	assert.NoError(t, af.Close())
}
