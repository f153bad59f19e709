package pipeline

import "time"

// Kind classifies an output record.
type Kind string

const (
	// KindStructured is a line that parsed as a self-contained JSON object.
	KindStructured Kind = "structured"
	// KindText is opaque output forwarded as-is.
	KindText Kind = "text"
	// KindNotice is a supervisor-generated note about the run, such as a
	// failed resume attempt.
	KindNotice Kind = "notice"
	// KindExit is the final record of a run.
	KindExit Kind = "exit"
)

// Where a session identifier was found.
const (
	SourceTopLevel = "top_level"
	SourceMetadata = "metadata"
	SourcePattern  = "pattern"
)

// Record is one framed unit of output. Records are built once and never
// modified after they leave the framer.
type Record struct {
	Seq     uint64    `json:"seq"`
	Kind    Kind      `json:"kind"`
	Stream  string    `json:"stream,omitempty"`
	Payload string    `json:"payload,omitempty"`
	Event   string    `json:"event,omitempty"`
	At      time.Time `json:"at"`

	// SessionID is the agent-assigned identifier this record carried, if
	// any. Whether it is adopted is decided downstream.
	SessionID       string `json:"session_id,omitempty"`
	SessionIDSource string `json:"session_id_source,omitempty"`

	Notice *Notice `json:"notice,omitempty"`
	Exit   *Exit   `json:"exit,omitempty"`
}

// Notice describes something the supervisor observed about the run.
type Notice struct {
	ResumeFailed bool `json:"resume_failed"`
	// FailedExit is the exit status of the failed resume attempt.
	FailedExit int `json:"failed_exit"`
}

// Exit is attached to the last record of a run.
type Exit struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// HasSessionID reports whether the record carries an identifier.
func (r Record) HasSessionID() bool {
	return r.SessionID != ""
}
