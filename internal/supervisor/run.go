package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pump"
	"go.uber.org/zap"
)

const killWait = time.Second

var (
	errJoinTimeout  = errors.New("pump did not exit in time")
	errStillRunning = errors.New("child survived SIGKILL")
)

// run is one attached child and everything opened for it. A Session owns
// at most one live run at a time.
type run struct {
	sess *Session
	mode launch.Mode
	log  *zap.Logger

	state atomic.Int32
	cont  atomic.Bool

	mu        sync.Mutex
	child     *launch.Child
	resume    ResumeOutcome
	startedAt time.Time
	endedAt   time.Time
	exitCode  int
	endReason string
	running   bool

	// fresh builds the fallback headless spec.
	fresh func() launch.HeadlessSpec

	bridge    *bridge.Bridge
	framer    *pipeline.Framer
	cond      *pipeline.Conditioner
	sawOutput atomic.Bool

	pumpDone chan struct{}
	done     chan struct{}
	once     sync.Once
	steps    []StepResult
}

func (r *run) State() State {
	return State(r.state.Load())
}

func (r *run) setState(s State) State {
	return State(r.state.Swap(int32(s)))
}

func (r *run) currentChild() *launch.Child {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.child
}

// attach records the child and moves the run to Running. It fails if a
// teardown already started while the child was being launched.
func (r *run) attach(child *launch.Child) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return false
	}
	r.child = child
	r.running = true
	r.startedAt = time.Now()
	return true
}

func (r *run) pumpLoop() {
	reason := r.drain(r.currentChild())
	if r.mode == launch.ModeHeadless && r.resumeState() == ResumePending {
		if next := r.fallback(); next != nil {
			reason = r.drain(next)
		}
	}
	r.settleResume()
	close(r.pumpDone)

	r.log.Debug("Pump ended", zap.String("reason", string(reason)))
	go r.teardown(string(reason))
}

func (r *run) drain(child *launch.Child) pump.EndReason {
	outputs := child.Outputs()
	inputs := make([]pump.Input, 0, len(outputs))
	order := make([]string, 0, len(outputs))
	for _, out := range outputs {
		inputs = append(inputs, pump.Input{Stream: out.Name, File: out.File})
		order = append(order, out.Name)
	}

	h := newHandler(r, order)
	reason := pump.Run(pump.Source{
		Inputs:   inputs,
		Exited:   child.Exited(),
		Continue: r.cont.Load,
	}, pump.Options{
		PollTimeout: r.sess.opts.PollTimeout,
		ChunkSize:   r.sess.opts.ChunkSize,
		Logger:      r.log.Named("pump"),
	}, h)
	h.flush()
	return reason
}

// fallback replaces a failed headless resume attempt with a fresh run of
// the same prompt. It returns nil when no retry is due.
func (r *run) fallback() *launch.Child {
	prev := r.currentChild()
	select {
	case <-prev.Exited():
	case <-time.After(r.sess.opts.TeardownGrace):
	}
	if prev.Alive() || !r.cont.Load() {
		return nil
	}
	code := prev.ExitCode()
	if code == 0 {
		r.setResume(ResumeResumed, nil)
		return nil
	}

	r.mu.Lock()
	if !r.cont.Load() {
		r.mu.Unlock()
		return nil
	}
	next, err := launch.Headless(r.fresh())
	if err != nil {
		r.mu.Unlock()
		r.log.Error("Fresh start after failed resume did not launch", zap.Error(err))
		r.sess.metrics().LaunchFailed(string(r.mode))
		r.deliver(r.framer.Notice(pipeline.Notice{ResumeFailed: true, FailedExit: code}))
		return nil
	}
	if err := prev.Close(); err != nil {
		r.log.Debug("Closing failed resume descriptors", zap.Error(err))
	}
	r.child = next
	r.mu.Unlock()

	r.log.Info("Resume failed, started fresh",
		zap.Int("failed_exit", code),
		zap.Int("pid", next.Pid))
	r.deliver(r.framer.Notice(pipeline.Notice{ResumeFailed: true, FailedExit: code}))
	return next
}

func (r *run) resumeState() ResumeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resume.Result
}

// setResume settles a pending resume. Identifiers held while the attempt
// was undecided are committed when it resumed and discarded when it fell
// back.
func (r *run) setResume(result ResumeResult, failedExit *int) {
	r.mu.Lock()
	if r.resume.Result != ResumePending {
		r.mu.Unlock()
		return
	}
	r.resume.Result = result
	r.resume.FailedExit = failedExit
	if result == ResumeFellBack {
		r.resume.FailedAfterOutput = r.sawOutput.Load()
	}
	r.mu.Unlock()

	r.bridge.Release(result != ResumeFellBack)
}

// settleResume resolves a still-pending resume once the pump is done and
// reports the final outcome. An aborted attempt stays pending but keeps
// the identifier it reported, since it was never seen failing.
func (r *run) settleResume() {
	r.mu.Lock()
	if r.resume.Result == ResumePending && r.cont.Load() {
		r.resume.Result = ResumeResumed
	}
	result := r.resume.Result
	r.mu.Unlock()

	if result != ResumeFellBack {
		r.bridge.Release(true)
	}
	if result != ResumePending {
		r.sess.metrics().Resume(string(result))
	}
}

func (r *run) deliver(rec pipeline.Record) {
	if rec.Kind == pipeline.KindNotice && rec.Notice != nil && rec.Notice.ResumeFailed {
		code := rec.Notice.FailedExit
		r.setResume(ResumeFellBack, &code)
	}
	if rec.Kind == pipeline.KindStructured {
		r.sawOutput.Store(true)
	}
	r.sess.metrics().Framed(string(r.mode), string(rec.Kind))
	r.bridge.Deliver(rec)
}

// teardown runs the ordered shutdown once. Later calls wait for the first
// to finish and return nil.
func (r *run) teardown(reason string) []StepResult {
	first := false
	r.once.Do(func() {
		first = true
		r.steps = r.shutdown(reason)
	})
	if !first {
		return nil
	}
	return r.steps
}

func (r *run) shutdown(reason string) []StepResult {
	began := time.Now()
	opts := r.sess.opts
	metrics := r.sess.metrics()

	steps := make([]StepResult, 0, 6)
	step := func(name string, fn func() error) {
		err := guard(fn)
		if err != nil {
			r.log.Warn("Teardown step failed", zap.String("step", name), zap.Error(err))
			metrics.TeardownStepFailed(name)
		}
		steps = append(steps, StepResult{Step: name, Err: err})
	}

	step(StepStop, func() error {
		prev := r.setState(StateTerminating)
		r.cont.Store(false)
		r.log.Debug("Stopping", zap.String("reason", reason), zap.Stringer("from", prev))
		return nil
	})

	child := r.currentChild()
	if child != nil {
		step(StepTerminate, func() error {
			if err := child.Terminate(); err != nil {
				return err
			}
			select {
			case <-child.Exited():
			case <-time.After(opts.TeardownGrace):
			}
			return nil
		})
		step(StepKill, func() error {
			if !child.Alive() {
				// Sweep group members that outlived the leader.
				return child.Kill()
			}
			r.log.Info("Child ignored SIGTERM, killing", zap.Int("pid", child.Pid))
			if err := child.Kill(); err != nil {
				return err
			}
			select {
			case <-child.Exited():
				return nil
			case <-time.After(killWait):
				return errStillRunning
			}
		})
	}

	// The pump is joined before descriptors close so it never polls a
	// descriptor number that has been reused.
	step(StepJoin, func() error {
		select {
		case <-r.pumpDone:
			return nil
		case <-time.After(opts.JoinTimeout):
			return errJoinTimeout
		}
	})

	if child = r.currentChild(); child != nil {
		step(StepClose, child.Close)
	}

	step(StepExit, func() error {
		code := -1
		if child != nil {
			code = child.ExitCode()
			if err := child.ExitErr(); err != nil {
				r.log.Debug("Child wait status", zap.Int("exit_code", code), zap.Error(err))
			}
		}
		r.mu.Lock()
		r.exitCode = code
		r.endReason = reason
		r.endedAt = time.Now()
		r.mu.Unlock()

		r.bridge.Deliver(r.framer.ExitRecord(code, reason))
		return r.bridge.Close()
	})

	r.setState(StateClosed)
	close(r.done)

	r.mu.Lock()
	running, started := r.running, r.startedAt
	r.mu.Unlock()
	if running {
		metrics.SessionEnded(string(r.mode), reason, time.Since(started))
	}
	r.log.Info("Session closed",
		zap.String("reason", reason),
		zap.Duration("teardown", time.Since(began)))
	return steps
}

// guard turns a panicking step into an error so later steps still run.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
