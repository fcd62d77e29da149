package run

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-suiterelay/artifacts"
	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

type fakeConn struct {
	id string

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

// pushes decodes every artifact push sent on the connection
func (c *fakeConn) pushes() []protocol.ArtifactPush {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ArtifactPush, 0, len(c.sent))
	for _, raw := range c.sent {
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		var push protocol.ArtifactPush
		if err := json.Unmarshal(env.Data, &push); err != nil {
			continue
		}
		out = append(out, push)
	}
	return out
}

func (c *fakeConn) pushCount() int {
	return len(c.pushes())
}

type fakeFinalizer struct {
	mu      sync.Mutex
	calls   int
	reports []types.Report
	err     error
}

func (f *fakeFinalizer) Finalize(_ context.Context, report types.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reports = append(f.reports, report)
	return f.err
}

func (f *fakeFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTeardown struct {
	calls atomic.Int32
}

func (f *fakeTeardown) Teardown(context.Context) error {
	f.calls.Add(1)
	return nil
}

type agentLine struct {
	severity protocol.Severity
	message  string
}

type fakeAgentLog struct {
	mu    sync.Mutex
	lines []agentLine
}

func (f *fakeAgentLog) Write(severity protocol.Severity, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, agentLine{severity: severity, message: message})
	return nil
}

var errSendFailed = errors.New("send failed")

func testStore(contents ...string) *artifacts.Store {
	list := make([]artifacts.Artifact, len(contents))
	for i, c := range contents {
		list[i] = artifacts.Artifact{Name: c + ".html", Content: c}
	}
	return artifacts.NewStaticStore(list, nil)
}

func declared(name string, ids ...string) *protocol.SuiteDeclared {
	return &protocol.SuiteDeclared{SuiteName: name, TestCaseIDs: ids}
}

func outcome(id, result string) *protocol.Outcome {
	return &protocol.Outcome{TestCaseID: id, Result: result}
}
