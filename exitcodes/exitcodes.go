// Package exitcodes defines the exit codes used by op-suiterelay.
package exitcodes

// Exit code constants used by op-suiterelay:
//
// * Success (0): the run completed and every test case passed
// * TestFailure (1): the run completed with failed test cases
// * RuntimeErr (2): configuration, listener or finalization failures
// * Aborted (3): the agent ended the run with a manual disconnect
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
	Aborted     = 3
)
