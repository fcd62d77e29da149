// Package run implements the dispatch/collect/finalize protocol for a single run.
//
// The main components are:
//   - Dispatcher: pushes the artifact at a given index to the agent connection
//   - State: the run state, including the append-only suite registry
//   - Collector: attributes outcome events to the suite at the current dispatch index
//   - Orchestrator: the event loop that owns State, arms settling timers and decides
//     when the run is complete
//
// All State mutations happen on the orchestrator's goroutine. Channel handlers and
// timers only post events to it, so no locking is needed around the state itself.
package run
