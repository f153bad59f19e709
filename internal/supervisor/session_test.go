package supervisor

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/agent"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fixedResolver struct {
	exe string
	err error
}

func (f fixedResolver) Executable() (string, error) { return f.exe, f.err }

func (f fixedResolver) WorkDir(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	return os.TempDir(), nil
}

type recordSink struct {
	mu   sync.Mutex
	recs []pipeline.Record
	exit chan pipeline.Record
}

func newRecordSink() *recordSink {
	return &recordSink{exit: make(chan pipeline.Record, 8)}
}

func (s *recordSink) Send(_ context.Context, rec pipeline.Record) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	if rec.Kind == pipeline.KindExit {
		s.exit <- rec
	}
	return nil
}

func (s *recordSink) records() []pipeline.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Record(nil), s.recs...)
}

func (s *recordSink) output(stream string) string {
	var b strings.Builder
	for _, r := range s.records() {
		if (r.Kind == pipeline.KindText || r.Kind == pipeline.KindStructured) && r.Stream == stream {
			b.WriteString(r.Payload)
		}
	}
	return b.String()
}

func (s *recordSink) waitExit(t *testing.T, within time.Duration) pipeline.Record {
	t.Helper()
	select {
	case rec := <-s.exit:
		return rec
	case <-time.After(within):
		t.Fatalf("no exit record within %s", within)
		return pipeline.Record{}
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func requirePTY(t *testing.T) {
	t.Helper()
	requireShell(t)
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pseudo-terminal support")
	}
}

func testOptions(args ...string) Options {
	return Options{
		Resolver:        fixedResolver{exe: "/bin/sh"},
		Shell:           "/bin/sh",
		ResumeFlag:      "--resume",
		InteractiveArgs: args,
		HeadlessArgs:    args,
		PollTimeout:     100 * time.Millisecond,
		TeardownGrace:   500 * time.Millisecond,
		JoinTimeout:     2 * time.Second,
		Conditioner:     true,
	}.withDefaults()
}

func newTestSession(sink *recordSink, opts Options) *Session {
	return newSession(id.NewSessionID(), sink, opts, nil)
}

func processGone(pid int) bool {
	return errors.Is(unix.Kill(pid, 0), unix.ESRCH)
}

func TestHeadlessCapturesFirstSessionID(t *testing.T) {
	requireShell(t)
	script := `echo '{"session_id":"abc-123-...","type":"init"}'
echo 'working on it'
echo '{"session_id":"zzz-999","type":"result"}'`

	var (
		mu       sync.Mutex
		captured []string
		persist  []string
	)
	sink := newRecordSink()
	opts := testOptions("-c", script)
	opts.OnAgentSession = func(_ id.SessionID, agentID string) {
		mu.Lock()
		persist = append(persist, agentID)
		mu.Unlock()
	}
	s := newSession(id.NewSessionID(), sink, opts, func(agentID string) {
		mu.Lock()
		captured = append(captured, agentID)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background(), StartRequest{Mode: launch.ModeHeadless, Prompt: "hi"}))
	exit := sink.waitExit(t, 5*time.Second)
	assert.Equal(t, 0, exit.Exit.Code)
	<-s.Done()

	recs := sink.records()
	require.GreaterOrEqual(t, len(recs), 4)
	assert.Equal(t, pipeline.KindStructured, recs[0].Kind)
	assert.Equal(t, "init", recs[0].Event)
	assert.Equal(t, pipeline.KindText, recs[1].Kind)
	assert.Equal(t, "working on it", recs[1].Payload)
	assert.Equal(t, pipeline.KindStructured, recs[2].Kind)

	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq)
	}

	assert.Equal(t, "abc-123-...", s.AgentSessionID())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(captured) == 1 && len(persist) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"abc-123-..."}, captured)
	assert.Equal(t, []string{"abc-123-..."}, persist)
	mu.Unlock()
	assert.Equal(t, StateClosed, s.State())
}

func TestHeadlessTagsStderr(t *testing.T) {
	requireShell(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `echo '{"session_id":"from-stderr"}' >&2; echo out; exit 4`))

	require.NoError(t, s.Start(context.Background(), StartRequest{Mode: launch.ModeHeadless}))
	exit := sink.waitExit(t, 5*time.Second)

	assert.Equal(t, 4, exit.Exit.Code)
	assert.Equal(t, `{"session_id":"from-stderr"}`, sink.output("stderr"))
	assert.Equal(t, "out", sink.output("stdout"))
	assert.Empty(t, s.AgentSessionID())
}

func TestHeadlessForwardsWhitespaceLines(t *testing.T) {
	requireShell(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `echo one; echo; printf '   \n'; echo two`))

	require.NoError(t, s.Start(context.Background(), StartRequest{Mode: launch.ModeHeadless}))
	sink.waitExit(t, 5*time.Second)

	var payloads []string
	for _, rec := range sink.records() {
		if rec.Kind == pipeline.KindText {
			payloads = append(payloads, rec.Payload)
		}
	}
	assert.Equal(t, []string{"one", "   ", "two"}, payloads)
}

const resumeScript = `if [ "$0" = "--resume" ]; then echo "no conversation $1" >&2; exit 3; fi
echo '{"session_id":"fresh-1","type":"init"}'`

func TestHeadlessResumeFallsBackToFresh(t *testing.T) {
	requireShell(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", resumeScript))

	require.NoError(t, s.Start(context.Background(), StartRequest{
		Mode:     launch.ModeHeadless,
		ResumeID: "gone-42",
		Prompt:   "continue",
	}))
	exit := sink.waitExit(t, 10*time.Second)
	<-s.Done()
	assert.Equal(t, 0, exit.Exit.Code)

	var notice *pipeline.Notice
	for _, rec := range sink.records() {
		if rec.Kind == pipeline.KindNotice {
			notice = rec.Notice
		}
	}
	require.NotNil(t, notice)
	assert.True(t, notice.ResumeFailed)
	assert.Equal(t, 3, notice.FailedExit)
	assert.Equal(t, "no conversation gone-42", sink.output("stderr"))
	assert.Equal(t, "fresh-1", s.AgentSessionID())

	info := s.Info()
	assert.Equal(t, "gone-42", info.Resume.Requested)
	assert.Equal(t, ResumeFellBack, info.Resume.Result)
	require.NotNil(t, info.Resume.FailedExit)
	assert.Equal(t, 3, *info.Resume.FailedExit)
	assert.False(t, info.Resume.FailedAfterOutput)
}

func TestHeadlessResumeSucceeds(t *testing.T) {
	requireShell(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `echo "{\"session_id\":\"$1\",\"type\":\"init\"}"`))

	require.NoError(t, s.Start(context.Background(), StartRequest{
		Mode:     launch.ModeHeadless,
		ResumeID: "kept-7",
		Prompt:   "continue",
	}))
	sink.waitExit(t, 5*time.Second)
	<-s.Done()

	info := s.Info()
	assert.Equal(t, ResumeResumed, info.Resume.Result)
	assert.Nil(t, info.Resume.FailedExit)
	assert.Equal(t, "kept-7", s.AgentSessionID())
	for _, rec := range sink.records() {
		assert.NotEqual(t, pipeline.KindNotice, rec.Kind)
	}
}

func TestInteractiveEchoesInputInOrder(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `read line; printf 'got:%s\n' "$line"`))

	require.NoError(t, s.Start(context.Background(), StartRequest{
		Mode:     launch.ModeInteractive,
		Geometry: terminal.Geometry{Rows: 24, Cols: 80},
	}))
	assert.Equal(t, StateRunning, s.State())
	require.True(t, s.Write([]byte("ls\n")))

	exit := sink.waitExit(t, 5*time.Second)
	assert.Equal(t, 0, exit.Exit.Code)

	for _, rec := range sink.records() {
		if rec.Kind != pipeline.KindExit {
			assert.Equal(t, pipeline.KindText, rec.Kind)
		}
	}
	assert.Equal(t, "ls\r\ngot:ls\r\n", sink.output("pty"))
}

func TestInteractiveRawPassthrough(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `printf '\033[2J\033[2Jone\n'`))
	off := false

	require.NoError(t, s.Start(context.Background(), StartRequest{Conditioner: &off}))
	sink.waitExit(t, 5*time.Second)

	assert.False(t, s.Info().Conditioned)
	assert.Equal(t, "\x1b[2J\x1b[2Jone\r\n", sink.output("pty"))
}

func TestInteractiveResumeFallbackNotice(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `[ "$0" = "--resume" ] && exit 5; echo fresh`))

	require.NoError(t, s.Start(context.Background(), StartRequest{ResumeID: "old-1"}))
	sink.waitExit(t, 5*time.Second)
	<-s.Done()

	info := s.Info()
	assert.Equal(t, ResumeFellBack, info.Resume.Result)
	require.NotNil(t, info.Resume.FailedExit)
	assert.Equal(t, 5, *info.Resume.FailedExit)
	assert.Contains(t, sink.output("pty"), agent.ResumeFailedMarker+" exit=5")
	assert.Contains(t, sink.output("pty"), "fresh")
}

type captureLog struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureLog) add(agentID string) {
	c.mu.Lock()
	c.ids = append(c.ids, agentID)
	c.mu.Unlock()
}

func (c *captureLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestHeadlessFailedResumeDoesNotKeepItsID(t *testing.T) {
	requireShell(t)
	script := `if [ "$0" = "--resume" ]; then echo '{"session_id":"old-1","type":"init"}'; exit 1; fi
echo '{"session_id":"fresh-2","type":"init"}'`
	sink := newRecordSink()
	var got captureLog
	s := newSession(id.NewSessionID(), sink, testOptions("-c", script), got.add)

	require.NoError(t, s.Start(context.Background(), StartRequest{
		Mode:     launch.ModeHeadless,
		ResumeID: "old-1",
		Prompt:   "continue",
	}))
	sink.waitExit(t, 10*time.Second)
	<-s.Done()

	assert.Equal(t, ResumeFellBack, s.Info().Resume.Result)
	assert.True(t, s.Info().Resume.FailedAfterOutput)
	assert.Equal(t, "fresh-2", s.AgentSessionID())
	assert.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"fresh-2"}, got.all())
}

func TestInteractiveFailedResumeDoesNotKeepItsID(t *testing.T) {
	requirePTY(t)
	const requested = "11111111-1111-4111-8111-111111111111"
	script := `if [ "$0" = "--resume" ]; then
  echo "No conversation found with session ID: $1 (last 33333333-3333-4333-8333-333333333333)"
  exit 1
fi
echo "session 22222222-2222-4222-8222-222222222222"`
	sink := newRecordSink()
	var got captureLog
	s := newSession(id.NewSessionID(), sink, testOptions("-c", script), got.add)

	require.NoError(t, s.Start(context.Background(), StartRequest{ResumeID: requested}))
	sink.waitExit(t, 5*time.Second)
	<-s.Done()

	assert.Equal(t, ResumeFellBack, s.Info().Resume.Result)
	assert.Contains(t, sink.output("pty"), "No conversation found")
	assert.Equal(t, "22222222-2222-4222-8222-222222222222", s.AgentSessionID())
	assert.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"22222222-2222-4222-8222-222222222222"}, got.all())
}

func TestInteractiveResumeCommitsHeldID(t *testing.T) {
	requirePTY(t)
	script := `echo "resuming $1"; echo "conversation 44444444-4444-4444-8444-444444444444"`
	sink := newRecordSink()
	var got captureLog
	s := newSession(id.NewSessionID(), sink, testOptions("-c", script), got.add)

	require.NoError(t, s.Start(context.Background(), StartRequest{
		ResumeID: "11111111-1111-4111-8111-111111111111",
	}))
	sink.waitExit(t, 5*time.Second)
	<-s.Done()

	assert.Equal(t, ResumeResumed, s.Info().Resume.Result)
	assert.Equal(t, "44444444-4444-4444-8444-444444444444", s.AgentSessionID())
	assert.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestStartAbortStartKeepsOneChild(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", "sleep 30"))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, StartRequest{}))
	first := s.Info().Pid
	require.NotZero(t, first)

	// Restarting a live session replaces its child.
	require.NoError(t, s.Start(ctx, StartRequest{}))
	second := s.Info().Pid
	assert.NotEqual(t, first, second)
	assert.True(t, processGone(first), "first child still running")
	assert.False(t, processGone(second))

	steps := s.Abort()
	require.NotEmpty(t, steps)
	for _, st := range steps {
		assert.NoError(t, st.Err, st.Step)
	}
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, processGone(second), "second child still running")

	require.NoError(t, s.Start(ctx, StartRequest{}))
	third := s.Info().Pid
	assert.False(t, processGone(third))
	s.Abort()
	assert.True(t, processGone(third))

	reasons := []string{}
	for _, rec := range sink.records() {
		if rec.Kind == pipeline.KindExit {
			reasons = append(reasons, rec.Exit.Reason)
		}
	}
	assert.Equal(t, []string{ReasonRestart, ReasonAbort, ReasonAbort}, reasons)
}

func TestTeardownIsIdempotent(t *testing.T) {
	requirePTY(t)

	idle := newTestSession(newRecordSink(), testOptions())
	assert.Nil(t, idle.Abort())
	assert.Equal(t, StateIdle, idle.State())

	s := newTestSession(newRecordSink(), testOptions("-c", "sleep 30"))
	require.NoError(t, s.Start(context.Background(), StartRequest{}))

	steps := s.Teardown(ReasonDisconnect)
	names := make([]string, 0, len(steps))
	for _, st := range steps {
		names = append(names, st.Step)
	}
	assert.Equal(t, []string{StepStop, StepTerminate, StepKill, StepJoin, StepClose, StepExit}, names)
	assert.Equal(t, StateClosed, s.State())

	assert.Nil(t, s.Teardown(ReasonDisconnect))
	assert.Nil(t, s.Abort())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, ReasonDisconnect, s.Info().EndReason)
}

func TestTeardownKillsChildIgnoringTerm(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	opts := testOptions("-c", `trap '' TERM; while :; do sleep 1; done`)
	opts.TeardownGrace = 100 * time.Millisecond
	s := newTestSession(sink, opts)

	require.NoError(t, s.Start(context.Background(), StartRequest{}))
	pid := s.Info().Pid
	time.Sleep(100 * time.Millisecond)

	for _, st := range s.Abort() {
		assert.NoError(t, st.Err, st.Step)
	}
	assert.True(t, processGone(pid))
	assert.Equal(t, -1, sink.waitExit(t, time.Second).Exit.Code)
}

func TestResizeIgnoresZero(t *testing.T) {
	requirePTY(t)
	s := newTestSession(newRecordSink(), testOptions("-c", "sleep 30"))
	require.NoError(t, s.Start(context.Background(), StartRequest{Geometry: terminal.Geometry{Rows: 24, Cols: 80}}))
	defer s.Abort()

	assert.False(t, s.Resize(0, 120))
	assert.False(t, s.Resize(40, 0))
	assert.Equal(t, terminal.Geometry{Rows: 24, Cols: 80}, s.Geometry())

	require.True(t, s.Resize(40, 120))
	assert.Equal(t, terminal.Geometry{Rows: 40, Cols: 120}, s.Geometry())

	got, err := terminal.Size(s.current.Load().currentChild().Terminal())
	require.NoError(t, err)
	assert.Equal(t, terminal.Geometry{Rows: 40, Cols: 120}, got)
}

func TestResizeBeforeStartIsKept(t *testing.T) {
	s := newTestSession(newRecordSink(), testOptions())

	assert.True(t, s.Resize(50, 132))
	assert.Equal(t, 50, s.Info().Rows)
	assert.Equal(t, 132, s.Info().Cols)
}

func TestExitDetectedWithinOnePollInterval(t *testing.T) {
	requirePTY(t)
	sink := newRecordSink()
	// The detached sleep keeps the terminal open after the shell exits, so
	// only the poll timeout can notice the exit. It must ignore the hangup
	// the kernel sends when the session leader goes away.
	s := newTestSession(sink, testOptions("-c", "trap '' HUP; sleep 30 & exit 7"))

	require.NoError(t, s.Start(context.Background(), StartRequest{}))
	exit := sink.waitExit(t, 3*time.Second)

	assert.Equal(t, 7, exit.Exit.Code)
	assert.Equal(t, "exited", exit.Exit.Reason)
	<-s.Done()
	assert.Equal(t, StateClosed, s.State())
}

func TestWriteWithoutRunningChild(t *testing.T) {
	s := newTestSession(newRecordSink(), testOptions())
	assert.False(t, s.Write([]byte("ignored\n")))
}

func TestHeadlessWriteNeedsPipe(t *testing.T) {
	requireShell(t)
	sink := newRecordSink()
	s := newTestSession(sink, testOptions("-c", `read line; echo "got $line"`))

	require.NoError(t, s.Start(context.Background(), StartRequest{Mode: launch.ModeHeadless, Stdin: launch.StdinPipe}))
	require.True(t, s.Write([]byte("task\n")))
	sink.waitExit(t, 5*time.Second)

	assert.Equal(t, "got task", sink.output("stdout"))
}

func TestLaunchFailureEndsRun(t *testing.T) {
	sink := newRecordSink()
	opts := testOptions()
	opts.Resolver = fixedResolver{err: agent.ErrExecutableNotFound}
	s := newTestSession(sink, opts)

	err := s.Start(context.Background(), StartRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrExecutableNotFound)
	assert.Equal(t, StateClosed, s.State())

	exit := sink.waitExit(t, time.Second)
	assert.Equal(t, ReasonLaunchFailed, exit.Exit.Reason)
	assert.False(t, s.Write([]byte("x")))
}

func TestStartRejectsUnknownMode(t *testing.T) {
	s := newTestSession(newRecordSink(), testOptions())
	err := s.Start(context.Background(), StartRequest{Mode: "batch"})
	assert.ErrorIs(t, err, launch.ErrLaunch)
	assert.Equal(t, StateIdle, s.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "terminating", StateTerminating.String())
	text, err := StateRunning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "running", string(text))

	var back State
	require.NoError(t, back.UnmarshalText([]byte("closed")))
	assert.Equal(t, StateClosed, back)
	assert.Error(t, back.UnmarshalText([]byte("sleeping")))
	assert.True(t, StateRunning.Live())
	assert.False(t, StateClosed.Live())
}

func TestStepResultJSON(t *testing.T) {
	ok, err := StepResult{Step: StepJoin}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":"join"}`, string(ok))

	failed, err := StepResult{Step: StepKill, Err: errors.New("boom")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":"kill","error":"boom"}`, string(failed))
}
