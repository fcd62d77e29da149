package run

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-suiterelay/metrics"
	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
	"github.com/ethereum-optimism/infra/op-suiterelay/types"
)

// DefaultSettleWindow is how long the orchestrator waits after a suite
// completes before comparing outcome counts
const DefaultSettleWindow = 500 * time.Millisecond

var (
	ErrRunFinished    = errors.New("run is finished")
	ErrAgentConnected = errors.New("an agent is already connected")
	ErrAlreadyRunning = errors.New("run already started")
)

// Finalizer summarizes and persists the outcomes of a completed run
type Finalizer interface {
	Finalize(ctx context.Context, report types.Report) error
}

// Teardown ends the browser-driving session once the run is over
type Teardown interface {
	Teardown(ctx context.Context) error
}

// AgentLogSink receives the agent's log lines
type AgentLogSink interface {
	Write(severity protocol.Severity, message string) error
}

// Reason explains why a run ended
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonAborted   Reason = "aborted"
	ReasonCanceled  Reason = "canceled"
)

// Result captures the end state of a run
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Reason     Reason
	Snapshot   Snapshot
}

// Summary returns the outcome counts of the run
func (r *Result) Summary() types.Summary {
	return types.Summarize(r.Snapshot.Outcomes)
}

// HasFailures reports whether any recorded outcome failed
func (r *Result) HasFailures() bool {
	return r.Summary().Failed > 0
}

func (r *Result) String() string {
	s := r.Summary()
	return fmt.Sprintf("run %s %s: %d tests, %d passed, %d failed", r.RunID, r.Reason, s.Total, s.Passed, s.Failed)
}

// Config holds configuration for creating a new orchestrator
type Config struct {
	Source                 ArtifactSource
	Finalizer              Finalizer
	Teardown               Teardown     // optional
	AgentLog               AgentLogSink // optional
	Log                    log.Logger
	Clock                  clock.Clock
	SettleWindow           time.Duration
	Duplicates             DuplicatePolicy
	LegacyErrorAttribution bool // attach the most recent agent error to outcomes without one
	LegacyEventNames       bool // push artifacts with the legacy event names
	Verbose                bool
	RunID                  string
}

type connectEvent struct {
	conn  protocol.Conn
	reply chan error
}

type disconnectEvent struct {
	conn protocol.Conn
}

type messageEvent struct {
	conn protocol.Conn
	msg  protocol.Message
}

type settleEvent struct{}

type snapshotEvent struct {
	reply chan Snapshot
}

// Orchestrator drives one run. Channel handlers call Connect, Deliver and
// Disconnect; Run processes those events one at a time.
type Orchestrator struct {
	cfg        Config
	log        log.Logger
	clock      clock.Clock
	dispatcher *Dispatcher
	collector  *Collector
	state      *State
	tracer     trace.Tracer

	events  chan interface{}
	done    chan struct{}
	started atomic.Bool

	// Owned by the Run goroutine
	ctx            context.Context
	active         protocol.Conn
	everConnected  bool
	pendingSettles int
	startedAt      time.Time
	suiteSpans     map[int]trace.Span
}

// NewOrchestrator creates an orchestrator for a single run
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("artifact source is required")
	}
	if cfg.Source.Len() == 0 {
		return nil, fmt.Errorf("no artifacts to dispatch")
	}
	if cfg.Finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = DefaultSettleWindow
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	return &Orchestrator{
		cfg:        cfg,
		log:        cfg.Log.New("run_id", cfg.RunID),
		clock:      cfg.Clock,
		dispatcher: NewDispatcher(cfg.Source, cfg.LegacyEventNames),
		collector:  NewCollector(cfg.Duplicates, cfg.LegacyErrorAttribution),
		state:      NewState(),
		tracer:     otel.Tracer("github.com/ethereum-optimism/infra/op-suiterelay/run"),
		events:     make(chan interface{}),
		done:       make(chan struct{}),
		suiteSpans: make(map[int]trace.Span),
	}, nil
}

// RunID returns the identifier of the run
func (o *Orchestrator) RunID() string {
	return o.cfg.RunID
}

// Done is closed once Run has returned
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Connect makes conn the active agent connection. The first connection of a
// run receives the first artifact. It fails with ErrAgentConnected while
// another connection is active.
func (o *Orchestrator) Connect(conn protocol.Conn) error {
	reply := make(chan error, 1)
	if err := o.post(connectEvent{conn: conn, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRunFinished
		}
	}
}

// Deliver hands an inbound agent message to the run
func (o *Orchestrator) Deliver(conn protocol.Conn, msg protocol.Message) error {
	return o.post(messageEvent{conn: conn, msg: msg})
}

// Disconnect releases conn if it is the active connection
func (o *Orchestrator) Disconnect(conn protocol.Conn) {
	_ = o.post(disconnectEvent{conn: conn})
}

// Snapshot returns a copy of the current run state
func (o *Orchestrator) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := o.post(snapshotEvent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-o.done:
		return Snapshot{}, ErrRunFinished
	}
}

func (o *Orchestrator) post(ev interface{}) error {
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrRunFinished
	}
}

// Run processes events until the run completes, the agent aborts it or ctx
// is canceled. The finalizer and teardown have returned by the time Run does.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer close(o.done)

	ctx, span := o.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run.id", o.cfg.RunID),
		attribute.Int("run.artifacts", o.cfg.Source.Len()),
	))
	defer span.End()

	o.ctx = ctx
	o.startedAt = o.clock.Now()
	o.log.Info("Run started",
		"artifacts", o.cfg.Source.Len(),
		"settle_window", o.cfg.SettleWindow,
		"duplicates", o.cfg.Duplicates)

	for {
		select {
		case <-ctx.Done():
			o.log.Warn("Run canceled before completion",
				"recorded", len(o.state.Outcomes),
				"expected", o.state.ExpectedTotal(),
				"err", ctx.Err())
			o.endSuiteSpans()
			return o.result(ReasonCanceled), nil
		case ev := <-o.events:
			if reason, done := o.handle(ev); done {
				return o.finish(ctx, reason)
			}
		}
	}
}

func (o *Orchestrator) handle(ev interface{}) (Reason, bool) {
	switch ev := ev.(type) {
	case connectEvent:
		ev.reply <- o.handleConnect(ev.conn)
	case disconnectEvent:
		if o.isActive(ev.conn) {
			o.log.Warn("Agent disconnected", "conn", ev.conn.ID(), "dispatch_index", o.state.DispatchIndex)
			o.active = nil
		}
	case snapshotEvent:
		ev.reply <- o.state.Snapshot()
	case settleEvent:
		o.pendingSettles--
		return o.checkCompletion()
	case messageEvent:
		if !o.isActive(ev.conn) {
			o.log.Warn("Ignoring message from inactive connection", "conn", ev.conn.ID(), "event", ev.msg.Event())
			return "", false
		}
		return o.handleMessage(ev.msg)
	default:
		o.log.Error("Unknown run event", "event", fmt.Sprintf("%T", ev))
	}
	return "", false
}

func (o *Orchestrator) handleConnect(conn protocol.Conn) error {
	if o.active != nil {
		metrics.RecordAgentConnection(false)
		o.log.Warn("Refusing second agent connection", "conn", conn.ID(), "active", o.active.ID())
		return ErrAgentConnected
	}
	metrics.RecordAgentConnection(true)
	o.active = conn
	o.log.Info("Agent connected", "conn", conn.ID())

	switch {
	case !o.everConnected:
		o.everConnected = true
		o.dispatch(0)
	case o.state.DispatchIndex < o.cfg.Source.Len() && len(o.state.Suites) <= o.state.DispatchIndex:
		o.log.Info("Agent reconnected, re-dispatching current artifact", "dispatch_index", o.state.DispatchIndex)
		o.dispatch(o.state.DispatchIndex)
	default:
		o.log.Warn("Agent reconnected while a suite was in progress", "dispatch_index", o.state.DispatchIndex)
	}
	return nil
}

func (o *Orchestrator) handleMessage(msg protocol.Message) (Reason, bool) {
	switch m := msg.(type) {
	case *protocol.SuiteDeclared:
		record := o.state.RegisterSuite(*m, o.clock.Now())
		metrics.RecordSuiteRegistered()
		if o.cfg.Verbose {
			o.log.Info("Found test suite", "suite", record.SuiteName, "test_cases", record.NumTestCases)
		} else {
			o.log.Debug("Found test suite", "suite", record.SuiteName, "test_cases", record.NumTestCases)
		}
		if span, ok := o.suiteSpans[len(o.state.Suites)-1]; ok {
			span.SetAttributes(
				attribute.String("suite.name", record.SuiteName),
				attribute.Int("suite.test_cases", record.NumTestCases),
			)
		}
		for _, res := range o.collector.Replay(o.state) {
			o.observe(res)
		}
	case *protocol.LogEvent:
		o.handleAgentLog(m)
	case *protocol.Outcome:
		o.observe(o.collector.Record(o.state, *m))
	case *protocol.SuiteCompleted:
		return o.completeSuite(false)
	case *protocol.SuiteResultsComplete:
		o.verifyConcluded(m)
		return o.completeSuite(true)
	case *protocol.ManualDisconnect:
		o.log.Warn("Agent requested manual disconnect")
		return ReasonAborted, true
	default:
		o.log.Warn("Unhandled agent message", "event", msg.Event())
	}
	return "", false
}

// completeSuite advances to the next artifact. With immediate set the
// completion check runs now, otherwise after the settling window.
func (o *Orchestrator) completeSuite(immediate bool) (Reason, bool) {
	o.endSuiteSpan(o.state.DispatchIndex)

	if dropped := o.collector.DiscardOrphans(); len(dropped) > 0 {
		for _, ev := range dropped {
			metrics.RecordDroppedOutcome(string(DropOrphaned))
			o.log.Warn("Dropping outcome for a suite that was never registered", "test_case", ev.TestCaseID, "dispatch_index", o.state.DispatchIndex)
		}
	}

	o.state.DispatchIndex++
	if o.state.DispatchIndex < o.cfg.Source.Len() {
		if o.active == nil {
			o.log.Warn("No agent connected, next artifact will be sent on reconnect", "dispatch_index", o.state.DispatchIndex)
		} else {
			o.dispatch(o.state.DispatchIndex)
		}
	}

	if immediate {
		return o.checkCompletion()
	}
	o.armSettle()
	return "", false
}

func (o *Orchestrator) armSettle() {
	o.pendingSettles++
	o.state.Phase = PhaseSettling
	// registered on the loop goroutine so timers are armed in event order
	expired := o.clock.After(o.cfg.SettleWindow)
	go func() {
		select {
		case <-expired:
			_ = o.post(settleEvent{})
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) checkCompletion() (Reason, bool) {
	matched := o.state.Complete(o.cfg.Source.Len())
	metrics.RecordCompletionCheck(matched)
	if matched {
		return ReasonCompleted, true
	}
	o.log.Debug("Run not complete",
		"recorded", len(o.state.Outcomes),
		"expected", o.state.ExpectedTotal(),
		"completed_suites", o.state.DispatchIndex,
		"artifacts", o.cfg.Source.Len())
	if o.pendingSettles <= 0 {
		o.pendingSettles = 0
		o.state.Phase = PhaseRunning
	}
	return "", false
}

// verifyConcluded logs test cases the agent claims to have concluded without
// a recorded outcome
func (o *Orchestrator) verifyConcluded(m *protocol.SuiteResultsComplete) {
	suite, ok := o.state.CurrentSuite()
	if !ok {
		o.log.Warn("Suite results complete for a suite that was never registered", "suite", m.SuiteName)
		return
	}
	recorded := make(map[string]struct{})
	for _, outcome := range o.state.Outcomes {
		if outcome.SuiteName == suite.SuiteName {
			recorded[outcome.TestCaseID] = struct{}{}
		}
	}
	for _, id := range m.TestCaseIDs {
		if _, ok := recorded[id]; !ok {
			o.log.Warn("Agent concluded a test case without reporting its outcome", "suite", suite.SuiteName, "test_case", id)
		}
	}
}

func (o *Orchestrator) observe(res RecordResult) {
	switch {
	case res.Buffered:
		o.log.Warn("Outcome arrived before its suite was registered, buffering",
			"test_case", res.Event.TestCaseID,
			"dispatch_index", o.state.DispatchIndex)
	case res.Dropped != "":
		metrics.RecordDroppedOutcome(string(res.Dropped))
		o.log.Warn("Dropping outcome",
			"reason", res.Dropped,
			"test_case", res.Event.TestCaseID,
			"dispatch_index", o.state.DispatchIndex)
	default:
		for _, outcome := range res.Recorded {
			metrics.RecordOutcome(outcome.Status)
			o.log.Debug("Recorded outcome",
				"suite", outcome.SuiteName,
				"test_case", outcome.TestCaseID,
				"status", outcome.Status,
				"late", res.Late)
		}
	}
}

func (o *Orchestrator) handleAgentLog(m *protocol.LogEvent) {
	severity := m.Severity
	switch severity {
	case protocol.SeverityError:
		o.state.LastError = m.Message
		o.log.Error("Agent", "message", m.Message)
	case protocol.SeverityDebug:
		o.log.Debug("Agent", "message", m.Message)
	case protocol.SeverityVerbose:
		o.log.Trace("Agent", "message", m.Message)
	default:
		severity = protocol.SeverityInfo
		o.log.Info("Agent", "message", m.Message)
	}
	metrics.RecordAgentLog(string(severity))

	if o.cfg.AgentLog != nil {
		if err := o.cfg.AgentLog.Write(severity, m.Message); err != nil {
			o.log.Warn("Failed to write agent log", "err", err)
		}
	}
}

func (o *Orchestrator) dispatch(index int) {
	sent, err := o.dispatcher.DispatchNext(o.active, index, true)
	if err != nil {
		metrics.RecordErrorDetails("dispatch", err)
		o.log.Error("Failed to dispatch artifact", "index", index, "err", err)
		return
	}
	if !sent {
		return
	}
	metrics.RecordDispatch()

	artifact, _ := o.cfg.Source.Artifact(index)
	o.log.Info("Dispatched artifact", "index", index, "artifact", artifact.Name, "aux_data", artifact.HasAuxData)

	if _, ok := o.suiteSpans[index]; !ok {
		_, span := o.tracer.Start(o.ctx, "suite", trace.WithAttributes(
			attribute.Int("suite.index", index),
			attribute.String("artifact.name", artifact.Name),
		))
		o.suiteSpans[index] = span
	}
}

func (o *Orchestrator) endSuiteSpan(index int) {
	if span, ok := o.suiteSpans[index]; ok {
		span.End()
		delete(o.suiteSpans, index)
	}
}

func (o *Orchestrator) endSuiteSpans() {
	for index := range o.suiteSpans {
		o.endSuiteSpan(index)
	}
}

func (o *Orchestrator) isActive(conn protocol.Conn) bool {
	return o.active != nil && conn != nil && o.active.ID() == conn.ID()
}

func (o *Orchestrator) finish(ctx context.Context, reason Reason) (*Result, error) {
	o.endSuiteSpans()

	var finalizeErr error
	switch reason {
	case ReasonCompleted:
		o.state.Phase = PhaseFinalized
		o.log.Info("All suites reported, finalizing",
			"suites", len(o.state.Suites),
			"outcomes", len(o.state.Outcomes))
		if err := o.cfg.Finalizer.Finalize(ctx, o.report()); err != nil {
			metrics.RecordErrorDetails("finalize", err)
			o.log.Error("Failed to finalize run", "err", err)
			finalizeErr = fmt.Errorf("failed to finalize run: %w", err)
		}
	case ReasonAborted:
		o.state.Phase = PhaseAborted
		o.log.Warn("Run aborted by agent",
			"recorded", len(o.state.Outcomes),
			"expected", o.state.ExpectedTotal())
	}

	if o.cfg.Teardown != nil {
		if err := o.cfg.Teardown.Teardown(ctx); err != nil {
			metrics.RecordErrorDetails("teardown", err)
			o.log.Error("Failed to tear down session", "err", err)
		}
	}

	result := o.result(reason)
	summary := result.Summary()
	metrics.RecordRun(o.cfg.RunID, string(reason), summary.Passed, summary.Failed, result.FinishedAt.Sub(result.StartedAt))
	o.log.Info("Run finished", "reason", reason, "passed", summary.Passed, "failed", summary.Failed)
	return result, finalizeErr
}

func (o *Orchestrator) report() types.Report {
	snap := o.state.Snapshot()
	return types.Report{
		RunID:      o.cfg.RunID,
		StartedAt:  o.startedAt,
		FinishedAt: o.clock.Now(),
		Suites:     snap.Suites,
		Outcomes:   snap.Outcomes,
		Verbose:    o.cfg.Verbose,
	}
}

func (o *Orchestrator) result(reason Reason) *Result {
	return &Result{
		RunID:      o.cfg.RunID,
		StartedAt:  o.startedAt,
		FinishedAt: o.clock.Now(),
		Reason:     reason,
		Snapshot:   o.state.Snapshot(),
	}
}
