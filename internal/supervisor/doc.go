// Package supervisor owns the lifecycle of agent sessions.
//
// A Session moves each run through Idle, Starting, Running, Terminating and
// Closed. Starting a session that is still live tears the old run down
// first, so at most one child is ever attached. Teardown is an ordered list
// of steps (stop, terminate, kill, join, close, exit) where each step's
// failure is recorded and the rest still run; calling it again is a no-op.
//
// Resume requests report how they resolved: resumed, or failed and fell
// back to a fresh start, with the failed attempt's exit status.
//
// Manager indexes sessions by ID for the transport layers.
package supervisor
