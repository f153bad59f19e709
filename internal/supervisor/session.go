package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/agent"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/terminal"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned by Manager lookups for unknown IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotRunning is returned when an operation needs a live child.
	ErrNotRunning = errors.New("session not running")
)

// StartRequest describes one run of the agent.
type StartRequest struct {
	Mode     launch.Mode
	WorkDir  string
	ResumeID string
	Geometry terminal.Geometry

	// Prompt is the task text for headless runs.
	Prompt string
	// Stdin selects headless standard input; closed by default.
	Stdin launch.StdinMode
	// Conditioner overrides the configured default when set.
	Conditioner *bool
	Env         []string
}

// Session supervises the agent for one client. It keeps its identity, the
// captured agent session id and the last geometry across restarts.
type Session struct {
	id        id.SessionID
	opts      Options
	sink      bridge.Sink
	onCapture func(agentID string)
	log       *zap.Logger
	createdAt time.Time

	capture bridge.Capture
	seq     atomic.Uint64

	// mu serializes Start and client-initiated teardown.
	mu      sync.Mutex
	current atomic.Pointer[run]

	geomMu sync.Mutex
	geom   terminal.Geometry
}

// NewSession creates an idle session. onCapture may be nil.
func NewSession(sink bridge.Sink, opts Options, onCapture func(agentID string)) *Session {
	return newSession(id.NewSessionID(), sink, opts.withDefaults(), onCapture)
}

func newSession(sid id.SessionID, sink bridge.Sink, opts Options, onCapture func(string)) *Session {
	return &Session{
		id:        sid,
		opts:      opts,
		sink:      sink,
		onCapture: onCapture,
		log:       opts.Logger.Named("supervisor").With(zap.String("session", sid.String())),
		createdAt: time.Now(),
		geom:      opts.Geometry,
	}
}

// ID returns the supervisor-assigned session ID.
func (s *Session) ID() id.SessionID {
	return s.id
}

// AgentSessionID returns the identifier the agent reported, or "".
func (s *Session) AgentSessionID() string {
	return s.capture.Value()
}

// State returns the current run's state, or StateIdle before any start.
func (s *Session) State() State {
	if r := s.current.Load(); r != nil {
		return r.State()
	}
	return StateIdle
}

// Done is closed when the current run has been torn down. Before any start
// it is already closed.
func (s *Session) Done() <-chan struct{} {
	if r := s.current.Load(); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Geometry returns the last applied terminal size.
func (s *Session) Geometry() terminal.Geometry {
	s.geomMu.Lock()
	defer s.geomMu.Unlock()
	return s.geom
}

func (s *Session) metrics() *monitoring.Metrics {
	return s.opts.Metrics
}

// Start attaches a new child. A run that is still live is torn down first,
// so a session never holds two children.
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.current.Load(); prev != nil && prev.State().Live() {
		s.log.Info("Restarting session, tearing down previous run")
		prev.teardown(ReasonRestart)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mode := req.Mode
	if mode == "" {
		mode = launch.ModeInteractive
	}
	if mode != launch.ModeInteractive && mode != launch.ModeHeadless {
		return fmt.Errorf("%w: unknown mode %q", launch.ErrLaunch, mode)
	}

	r := s.newRun(mode, req)
	s.current.Store(r)

	exe, err := s.opts.Resolver.Executable()
	if err != nil {
		return s.launchFailed(r, err)
	}
	workDir, err := s.opts.Resolver.WorkDir(req.WorkDir)
	if err != nil {
		return s.launchFailed(r, err)
	}
	inv := s.opts.invocation(exe, mode)

	var child *launch.Child
	switch mode {
	case launch.ModeInteractive:
		child, err = s.launchInteractive(r, inv, workDir, req)
	default:
		child, err = s.launchHeadless(r, inv, workDir, req)
	}
	if err != nil {
		return s.launchFailed(r, err)
	}

	if !r.attach(child) {
		_ = child.Kill()
		_ = child.Close()
		return fmt.Errorf("%w: stopped during start", ErrNotRunning)
	}
	s.metrics().SessionStarted(string(mode))
	s.log.Info("Session started",
		zap.String("mode", string(mode)),
		zap.Int("pid", child.Pid),
		zap.String("workdir", workDir),
		zap.Bool("resume", req.ResumeID != ""),
		zap.Bool("conditioned", r.cond.Enabled()))

	go r.pumpLoop()
	return nil
}

func (s *Session) newRun(mode launch.Mode, req StartRequest) *run {
	log := s.log.With(zap.String("mode", string(mode)))

	conditioned := s.opts.Conditioner
	if req.Conditioner != nil {
		conditioned = *req.Conditioner
	}
	metrics := s.metrics()

	r := &run{
		sess:     s,
		mode:     mode,
		log:      log,
		exitCode: -1,
		framer:   pipeline.NewFramer(&s.seq),
		cond: pipeline.NewConditioner(pipeline.ConditionerOptions{
			Enabled:    conditioned && mode == launch.ModeInteractive,
			OnSuppress: metrics.Suppressed,
			Logger:     log.Named("conditioner"),
		}),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.resume = ResumeOutcome{Result: ResumeFresh}
	if req.ResumeID != "" {
		r.resume = ResumeOutcome{Requested: req.ResumeID, Result: ResumePending}
		r.framer.SkipPatternID(req.ResumeID)
	}
	r.state.Store(int32(StateStarting))
	r.cont.Store(true)
	r.bridge = bridge.New(s.sink, bridge.Options{
		QueueSize:       s.opts.QueueSize,
		ScheduleTimeout: s.opts.ScheduleTimeout,
		Capture:         &s.capture,
		OnCapture:       s.captured,
		Hold:            req.ResumeID != "",
		Metrics:         metrics,
		Logger:          log.Named("bridge"),
	})
	return r
}

func (s *Session) launchInteractive(r *run, inv agent.Invocation, workDir string, req StartRequest) (*launch.Child, error) {
	geom := req.Geometry
	if !geom.Valid() {
		geom = s.Geometry()
	}
	pair, err := terminal.Open(geom, r.log)
	if err != nil {
		return nil, err
	}
	if req.ResumeID != "" {
		r.framer.WatchNotice(agent.ResumeFailedMarker)
	}

	child, err := launch.Interactive(pair, launch.InteractiveSpec{
		Shell:    s.opts.Shell,
		Script:   inv.InteractiveScript(req.ResumeID),
		WorkDir:  workDir,
		Env:      req.Env,
		Geometry: geom,
	})
	if err != nil {
		return nil, err
	}
	s.geomMu.Lock()
	s.geom = geom
	s.geomMu.Unlock()
	return child, nil
}

func (s *Session) launchHeadless(r *run, inv agent.Invocation, workDir string, req StartRequest) (*launch.Child, error) {
	spec := func(resumeID string) launch.HeadlessSpec {
		return launch.HeadlessSpec{
			Executable: inv.Executable,
			Args:       inv.HeadlessArgs(req.Prompt, resumeID),
			WorkDir:    workDir,
			Env:        req.Env,
			Stdin:      req.Stdin,
		}
	}
	r.fresh = func() launch.HeadlessSpec { return spec("") }
	return launch.Headless(spec(req.ResumeID))
}

// launchFailed closes out a run that never got a child.
func (s *Session) launchFailed(r *run, err error) error {
	s.log.Error("Launch failed", zap.Error(err))
	s.metrics().LaunchFailed(string(r.mode))
	close(r.pumpDone)
	r.teardown(ReasonLaunchFailed)
	return fmt.Errorf("start %s session: %w", r.mode, err)
}

func (s *Session) captured(agentID string) {
	s.metrics().AgentIDCapture()
	if s.onCapture != nil {
		s.onCapture(agentID)
	}
	if s.opts.OnAgentSession != nil {
		s.opts.OnAgentSession(s.id, agentID)
	}
}

// Write sends input to the child. It reports false, without error, when
// no running child can take it.
func (s *Session) Write(p []byte) bool {
	r := s.current.Load()
	if r == nil || r.State() != StateRunning {
		return false
	}
	child := r.currentChild()
	if child == nil {
		return false
	}
	w := child.Input()
	if w == nil {
		return false
	}
	if _, err := w.Write(p); err != nil {
		s.log.Debug("Input write failed", zap.Error(err))
		return false
	}
	return true
}

// Resize applies a new terminal size. Non-positive dimensions are ignored
// and leave the stored geometry unchanged. Without a running interactive
// child the size is kept for the next start.
func (s *Session) Resize(rows, cols int) bool {
	geom := terminal.Geometry{Rows: rows, Cols: cols}
	if !geom.Valid() {
		s.log.Debug("Ignoring resize", zap.Int("rows", rows), zap.Int("cols", cols))
		return false
	}

	if r := s.current.Load(); r != nil && r.State() == StateRunning {
		if child := r.currentChild(); child != nil && child.Terminal() != nil {
			if err := terminal.Resize(child.Terminal(), geom); err != nil {
				s.log.Warn("Resize failed", zap.Error(err))
				return false
			}
		}
	}

	s.geomMu.Lock()
	s.geom = geom
	s.geomMu.Unlock()
	return true
}

// Abort tears down the current run. On an idle or closed session it does
// nothing and returns nil.
func (s *Session) Abort() []StepResult {
	return s.Teardown(ReasonAbort)
}

// Teardown stops the current run, recording reason. It is idempotent.
func (s *Session) Teardown(reason string) []StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current.Load()
	if r == nil {
		return nil
	}
	return r.teardown(reason)
}

// Info is a point-in-time view of a session.
type Info struct {
	ID             string        `json:"id"`
	Mode           string        `json:"mode,omitempty"`
	State          State         `json:"state"`
	Pid            int           `json:"pid,omitempty"`
	Rows           int           `json:"rows"`
	Cols           int           `json:"cols"`
	AgentSessionID string        `json:"agent_session_id,omitempty"`
	Resume         ResumeOutcome `json:"resume"`
	Conditioned    bool          `json:"conditioned"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	ExitCode       *int          `json:"exit_code,omitempty"`
	EndReason      string        `json:"end_reason,omitempty"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	geom := s.Geometry()
	info := Info{
		ID:             s.id.String(),
		State:          StateIdle,
		Rows:           geom.Rows,
		Cols:           geom.Cols,
		AgentSessionID: s.capture.Value(),
		Resume:         ResumeOutcome{Result: ResumeFresh},
		CreatedAt:      s.createdAt,
	}

	r := s.current.Load()
	if r == nil {
		return info
	}
	info.Mode = string(r.mode)
	info.State = r.State()
	info.Conditioned = r.cond.Enabled()

	r.mu.Lock()
	defer r.mu.Unlock()
	info.Resume = r.resume
	if r.child != nil {
		info.Pid = r.child.Pid
	}
	if r.running {
		started := r.startedAt
		info.StartedAt = &started
	}
	if !r.endedAt.IsZero() {
		ended, code := r.endedAt, r.exitCode
		info.EndedAt = &ended
		info.ExitCode = &code
		info.EndReason = r.endReason
	}
	return info
}
