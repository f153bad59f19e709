package launch

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Mode selects how the child is attached.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeHeadless    Mode = "headless"
)

// descriptor closes its file exactly once, whichever path gets there first.
type descriptor struct {
	name string
	file *os.File
	once sync.Once
	err  error
}

func newDescriptor(name string, f *os.File) *descriptor {
	return &descriptor{name: name, file: f}
}

func (d *descriptor) close() error {
	d.once.Do(func() {
		d.err = d.file.Close()
	})
	return d.err
}

// Stream names one readable output of a child.
type Stream struct {
	Name string
	File *os.File
}

// Child is a running agent process and the descriptors the supervisor holds
// for it.
type Child struct {
	Mode Mode
	Pid  int

	cmd     *exec.Cmd
	input   *os.File
	outputs []Stream
	fds     []*descriptor

	exited   chan struct{}
	exitCode int
	exitErr  error
}

// start runs cmd and begins waiting on it. closeAfterStart are the child's
// ends of pipes or the terminal slave, which the parent must drop once the
// child holds its own copies.
func start(mode Mode, cmd *exec.Cmd, held []*descriptor, closeAfterStart []*os.File) (*Child, error) {
	if err := cmd.Start(); err != nil {
		for _, f := range closeAfterStart {
			_ = f.Close()
		}
		for _, d := range held {
			_ = d.close()
		}
		return nil, err
	}
	for _, f := range closeAfterStart {
		_ = f.Close()
	}

	c := &Child{
		Mode:     mode,
		Pid:      cmd.Process.Pid,
		cmd:      cmd,
		fds:      held,
		exited:   make(chan struct{}),
		exitCode: -1,
	}
	go c.wait()
	return c, nil
}

func (c *Child) wait() {
	err := c.cmd.Wait()
	c.exitErr = err
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
	}
	close(c.exited)
}

// Exited is closed once the process has been reaped.
func (c *Child) Exited() <-chan struct{} {
	return c.exited
}

// Alive reports whether the process has not yet been reaped.
func (c *Child) Alive() bool {
	select {
	case <-c.exited:
		return false
	default:
		return true
	}
}

// ExitCode is the process exit status, or -1 while running or when it was
// killed by a signal.
func (c *Child) ExitCode() int {
	if c.Alive() {
		return -1
	}
	return c.exitCode
}

// ExitErr is the error returned by Wait. Only meaningful after Exited.
func (c *Child) ExitErr() error {
	if c.Alive() {
		return nil
	}
	return c.exitErr
}

// Input returns the descriptor that feeds the child's standard input, or nil
// when the child was started without one.
func (c *Child) Input() io.Writer {
	if c.input == nil {
		return nil
	}
	return c.input
}

// Outputs returns the descriptors the pump should read.
func (c *Child) Outputs() []Stream {
	return c.outputs
}

// Terminal returns the terminal master for interactive children.
func (c *Child) Terminal() *os.File {
	if c.Mode != ModeInteractive {
		return nil
	}
	return c.input
}

// Terminate asks the whole process group to exit. Signalling a group that
// no longer exists is not an error.
func (c *Child) Terminate() error {
	return c.signal(unix.SIGTERM)
}

// Kill force-kills the whole process group.
func (c *Child) Kill() error {
	return c.signal(unix.SIGKILL)
}

func (c *Child) signal(sig unix.Signal) error {
	// The child leads its own group, so -pid reaches the agent and anything
	// it spawned, including stragglers that outlive the leader.
	err := unix.Kill(-c.Pid, sig)
	if !errors.Is(err, unix.ESRCH) {
		return err
	}
	if !c.Alive() {
		return nil
	}
	err = c.cmd.Process.Signal(syscall.Signal(sig))
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Close releases every descriptor the supervisor holds for this child.
// Calling it again is harmless: each descriptor is closed exactly once and
// repeated calls report the original results.
func (c *Child) Close() error {
	var errs []error
	for _, d := range c.fds {
		if err := d.close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, &os.PathError{Op: "close", Path: d.name, Err: err})
		}
	}
	return errors.Join(errs...)
}
