package ws

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/supervisor"
)

// Client message types.
const (
	TypeStart  = "start"
	TypeInput  = "input"
	TypeResize = "resize"
	TypeAbort  = "abort"
	TypeInfo   = "info"
	TypePing   = "ping"
)

// Server message types.
const (
	TypeConnected    = "connected"
	TypeStarted      = "started"
	TypeOutput       = "output"
	TypeNotice       = "notice"
	TypeExit         = "exit"
	TypeAgentSession = "agent_session"
	TypeAborted      = "aborted"
	TypeError        = "error"
	TypePong         = "pong"
)

// ClientMessage is anything a client sends. Fields are used according to
// Type.
type ClientMessage struct {
	Type string `json:"type"`

	// start
	Mode        string   `json:"mode,omitempty"`
	WorkDir     string   `json:"workdir,omitempty"`
	ResumeID    string   `json:"resume_id,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Stdin       string   `json:"stdin,omitempty"`
	Conditioner *bool    `json:"conditioner,omitempty"`
	Env         []string `json:"env,omitempty"`

	// start, resize
	Rows int `json:"rows,omitempty"`
	Cols int `json:"cols,omitempty"`

	// input
	Data string `json:"data,omitempty"`
}

// ServerMessage is anything the server sends.
type ServerMessage struct {
	Type      string `json:"type"`
	Session   string `json:"session,omitempty"`
	Timestamp int64  `json:"timestamp"`

	Record         *pipeline.Record        `json:"record,omitempty"`
	Info           *supervisor.Info        `json:"info,omitempty"`
	AgentSessionID string                  `json:"agent_session_id,omitempty"`
	Steps          []supervisor.StepResult `json:"steps,omitempty"`
	Message        string                  `json:"message,omitempty"`
}

func newMessage(typ, session string) ServerMessage {
	return ServerMessage{Type: typ, Session: session, Timestamp: time.Now().Unix()}
}

// recordMessage picks the message type for a delivered record.
func recordMessage(session string, rec pipeline.Record) ServerMessage {
	typ := TypeOutput
	switch rec.Kind {
	case pipeline.KindNotice:
		typ = TypeNotice
	case pipeline.KindExit:
		typ = TypeExit
	}
	msg := newMessage(typ, session)
	msg.Record = &rec
	return msg
}
