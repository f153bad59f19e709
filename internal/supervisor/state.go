package supervisor

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// State is a run's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateClosed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Live reports whether a child may still be attached.
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning || s == StateTerminating
}

// End reasons recorded on the exit record and in metrics.
const (
	ReasonAbort        = "abort"
	ReasonDisconnect   = "disconnect"
	ReasonRestart      = "restart"
	ReasonShutdown     = "shutdown"
	ReasonLaunchFailed = "launch_failed"
)

// ResumeResult says how a resume request turned out.
type ResumeResult string

const (
	// ResumeFresh: no resume was requested.
	ResumeFresh ResumeResult = "fresh"
	// ResumePending: the resumed agent is running and has not failed.
	ResumePending ResumeResult = "pending"
	// ResumeResumed: the resume attempt ran to completion.
	ResumeResumed ResumeResult = "resumed"
	// ResumeFellBack: the resume attempt exited non-zero and a fresh
	// session was started in its place.
	ResumeFellBack ResumeResult = "resume_failed_fell_back"
)

// ResumeOutcome keeps "could not resume" apart from "started fresh".
type ResumeOutcome struct {
	Requested string       `json:"requested,omitempty"`
	Result    ResumeResult `json:"result"`
	// FailedExit is the exit status of the failed resume attempt.
	FailedExit *int `json:"failed_exit,omitempty"`
	// FailedAfterOutput is set when the failed attempt had already
	// produced structured output, meaning it likely resumed and crashed.
	FailedAfterOutput bool `json:"failed_after_output,omitempty"`
}

// Teardown steps, in the order they run.
const (
	StepStop      = "stop"
	StepTerminate = "terminate"
	StepKill      = "kill"
	StepJoin      = "join"
	StepClose     = "close"
	StepExit      = "exit"
)

// StepResult is the outcome of one teardown step. A failed step never
// prevents the next one from running.
type StepResult struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

// Error returns the step error text, or "" on success.
func (r StepResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON renders the step with its error text.
func (r StepResult) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(struct {
		Step  string `json:"step"`
		Error string `json:"error,omitempty"`
	}{r.Step, r.Error()})
}
