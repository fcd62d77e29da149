// Package logging persists the log lines the execution agent sends over the
// channel.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
)

const AgentLogFile = "agent.log"

// AgentLog writes agent log lines to <runDir>/agent.log
type AgentLog struct {
	file *AsyncFile
	now  func() time.Time
}

// NewAgentLog creates the run directory and the agent log file in it
func NewAgentLog(runDir string) (*AgentLog, error) {
	if runDir == "" {
		return nil, fmt.Errorf("run directory cannot be empty")
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	file, err := NewAsyncFile(filepath.Join(runDir, AgentLogFile))
	if err != nil {
		return nil, err
	}
	return &AgentLog{file: file, now: time.Now}, nil
}

// Write appends one line. Agent messages often carry terminal colors, which
// are stripped.
func (l *AgentLog) Write(severity protocol.Severity, message string) error {
	if severity == "" {
		severity = protocol.SeverityInfo
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		l.now().UTC().Format(time.RFC3339Nano),
		strings.ToUpper(string(severity)),
		strings.TrimRight(stripansi.Strip(message), "\n"))
	return l.file.Write([]byte(line))
}

// Close flushes and closes the file
func (l *AgentLog) Close() error {
	return l.file.Close()
}
