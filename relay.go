// Package relay wires the suite relay service: it loads the artifacts, serves
// the agent channel and drives a single run to its report.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-suiterelay/artifacts"
	"github.com/ethereum-optimism/infra/op-suiterelay/channel"
	"github.com/ethereum-optimism/infra/op-suiterelay/exitcodes"
	"github.com/ethereum-optimism/infra/op-suiterelay/logging"
	"github.com/ethereum-optimism/infra/op-suiterelay/reporting"
	"github.com/ethereum-optimism/infra/op-suiterelay/run"
	"github.com/ethereum-optimism/infra/op-suiterelay/service"
	"github.com/ethereum-optimism/infra/op-suiterelay/session"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// relay implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &relay{}

// relay serves one run: the agent connects, receives every artifact in order
// and reports outcomes until the run completes or is aborted.
type relay struct {
	ctx          context.Context
	config       *Config
	version      string
	out          io.Writer
	store        *artifacts.Store
	orchestrator *run.Orchestrator
	server       *channel.Server
	webdriver    *session.WebDriver
	agentLog     *logging.AgentLog
	svc          *service.Service

	running atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc

	mu     sync.Mutex
	result *run.Result
	err    error

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the relay. Everything that can fail on bad configuration fails
// here, before the channel starts listening.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*relay, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}

	config.Log.Debug("Creating relay with config",
		"manifest", config.ManifestFile,
		"listen", fmt.Sprintf("%s:%d", config.ListenAddr, config.ListenPort),
		"reportDir", config.ReportDir,
		"settleWindow", config.SettleWindow,
		"duplicates", config.Duplicates)

	store, err := artifacts.NewStore(artifacts.Config{
		Log:          config.Log,
		ManifestFile: config.ManifestFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	webdriver, err := session.NewWebDriver(session.Config{
		URL:       config.WebDriverURL,
		SessionID: config.WebDriverSession,
		Log:       config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webdriver session: %w", err)
	}

	r := &relay{
		ctx:              ctx,
		config:           config,
		version:          version,
		out:              os.Stdout,
		store:            store,
		webdriver:        webdriver,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}

	var runDir string
	if config.ReportDir != "" {
		runDir = reporting.RunDirectory(config.ReportDir, time.Now())
		r.agentLog, err = logging.NewAgentLog(runDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent log: %w", err)
		}
	}

	orchestratorCfg := run.Config{
		Source: store,
		Finalizer: reporting.NewReporter(reporting.Config{
			Out:    r.out,
			RunDir: runDir,
			Log:    config.Log,
		}),
		Teardown:               webdriver,
		Log:                    config.Log,
		SettleWindow:           config.SettleWindow,
		Duplicates:             config.Duplicates,
		LegacyErrorAttribution: config.LegacyErrorAttribution,
		LegacyEventNames:       config.LegacyEventNames,
		Verbose:                config.Verbose,
	}
	if r.agentLog != nil {
		orchestratorCfg.AgentLog = r.agentLog
	}
	r.orchestrator, err = run.NewOrchestrator(orchestratorCfg)
	if err != nil {
		r.closeAgentLog()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	r.server, err = channel.NewServer(channel.Config{
		Host:    config.ListenAddr,
		Port:    config.ListenPort,
		Handler: r.orchestrator,
		Log:     config.Log,
	})
	if err != nil {
		r.closeAgentLog()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	r.svc = service.New(service.Config{
		HealthzEnabled: config.HealthzEnabled,
		HealthzHost:    config.HealthzAddr,
		HealthzPort:    config.HealthzPort,
		MetricsEnabled: config.Metrics.Enabled,
		MetricsHost:    config.Metrics.ListenAddr,
		MetricsPort:    config.Metrics.ListenPort,
		Status:         r.status,
		Log:            config.Log,
	})

	config.Log.Info("relay.New: loaded artifacts", "artifacts", store.Len(), "run_id", r.orchestrator.RunID())
	return r, nil
}

// Start binds the channel and runs the orchestrator in the background. The
// shutdown callback fires once the run has ended.
// Start implements the cliapp.Lifecycle interface.
func (r *relay) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Log.Error("Runtime error occurred", "error", rec)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if err := r.server.Start(); err != nil {
		return NewRuntimeError(err)
	}
	r.ctx = ctx
	r.running.Store(true)
	r.svc.Start(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := r.server.Serve(gctx); err != nil {
			return NewRuntimeError(err)
		}
		return nil
	})
	g.Go(func() error {
		res, err := r.orchestrator.Run(gctx)
		// the run is over, stop accepting agents
		cancel()
		return r.complete(res, err)
	})

	go func() {
		err := g.Wait()
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
		r.shutdownCallback(err)
	}()

	r.config.Log.Info("Waiting for agent", "addr", r.server.Addr(), "artifacts", r.store.Len())
	return nil
}

// complete records the run result and maps it onto the exit error taxonomy
func (r *relay) complete(res *run.Result, err error) error {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()

	if err != nil {
		return NewRuntimeError(err)
	}
	if res == nil {
		return nil
	}

	fmt.Fprintln(r.out, res.String())
	r.config.Log.Info("Run completed", "run_id", res.RunID, "reason", res.Reason)

	switch res.Reason {
	case run.ReasonAborted:
		return NewAbortedError(res.String())
	case run.ReasonCompleted:
		if res.HasFailures() && r.config.FailOnTestFailure {
			r.config.Log.Warn("Run completed with failures, returning exit code 1")
			return NewTestFailureError(res.String())
		}
	}
	return nil
}

// Stop stops the relay and returns the error the run ended with, if any.
// Stop implements the cliapp.Lifecycle interface.
func (r *relay) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-suiterelay")

	if !r.running.Load() {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return r.Err()
	}
	r.running.Store(false)

	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		r.config.Log.Warn("Timed out waiting for the run to stop", "err", ctx.Err())
	}

	r.svc.Shutdown()
	r.closeAgentLog()

	r.config.Log.Info("op-suiterelay stopped")
	return r.Err()
}

// Stopped returns true if the relay is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (r *relay) Stopped() bool {
	return !r.running.Load()
}

// Err returns the error the run ended with
func (r *relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Result returns the run result once the run has ended
func (r *relay) Result() *run.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Addr returns the address the channel listens on
func (r *relay) Addr() string {
	return r.server.Addr()
}

// Done is closed once the run has ended and the channel has shut down
func (r *relay) Done() <-chan struct{} {
	return r.done
}

func (r *relay) closeAgentLog() {
	if r.agentLog == nil {
		return
	}
	if err := r.agentLog.Close(); err != nil {
		r.config.Log.Warn("Failed to close agent log", "err", err)
	}
}

type runStatus struct {
	RunID         string    `json:"runId"`
	Phase         run.Phase `json:"phase"`
	DispatchIndex int       `json:"dispatchIndex"`
	Artifacts     int       `json:"artifacts"`
	Suites        int       `json:"suites"`
	Expected      int       `json:"expected"`
	Recorded      int       `json:"recorded"`
}

func (r *relay) status() (interface{}, error) {
	snap, err := r.orchestrator.Snapshot()
	if err != nil {
		res := r.Result()
		if res == nil {
			return nil, err
		}
		snap = res.Snapshot
	}
	return runStatus{
		RunID:         r.orchestrator.RunID(),
		Phase:         snap.Phase,
		DispatchIndex: snap.DispatchIndex,
		Artifacts:     r.store.Len(),
		Suites:        len(snap.Suites),
		Expected:      snap.ExpectedTotal,
		Recorded:      len(snap.Outcomes),
	}, nil
}
