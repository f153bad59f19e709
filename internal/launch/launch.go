package launch

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/terminal"
)

// ErrLaunch wraps every failure to produce a running child.
var ErrLaunch = errors.New("launch failed")

// StdinMode selects what a headless child sees on standard input.
type StdinMode string

const (
	StdinClosed  StdinMode = "closed"
	StdinPipe    StdinMode = "pipe"
	StdinInherit StdinMode = "inherit"
)

// InteractiveSpec describes a shell started on a terminal.
type InteractiveSpec struct {
	Shell    string
	Script   string
	WorkDir  string
	Env      []string
	Geometry terminal.Geometry
}

// HeadlessSpec describes a pipe-attached single run.
type HeadlessSpec struct {
	Executable string
	Args       []string
	WorkDir    string
	Env        []string
	Stdin      StdinMode
}

// Interactive starts spec.Shell -c spec.Script with all three standard
// streams on the slave side of pair. The child becomes a session leader
// with the slave as its controlling terminal. On success the child owns the
// master; on failure both ends of pair are closed.
func Interactive(pair *terminal.Pair, spec InteractiveSpec) (*Child, error) {
	shell := spec.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell, "-c", spec.Script)
	cmd.Dir = spec.WorkDir
	cmd.Env = MergeEnv(os.Environ(), interactiveEnv(spec.Geometry), spec.Env)
	cmd.Stdin = pair.Slave
	cmd.Stdout = pair.Slave
	cmd.Stderr = pair.Slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}

	master := newDescriptor("pty-master", pair.Master)
	child, err := start(ModeInteractive, cmd, []*descriptor{master}, []*os.File{pair.Slave})
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrLaunch, shell, err)
	}
	child.input = pair.Master
	child.outputs = []Stream{{Name: "pty", File: pair.Master}}
	return child, nil
}

// Headless starts the agent directly with stdout and stderr on separate
// pipes, in its own process group.
func Headless(spec HeadlessSpec) (*Child, error) {
	if spec.Executable == "" {
		return nil, fmt.Errorf("%w: no executable", ErrLaunch)
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = MergeEnv(os.Environ(), headlessEnv(), spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var (
		held       []*descriptor
		childEnds  []*os.File
		stdinWrite *os.File
	)
	fail := func(err error) (*Child, error) {
		for _, f := range childEnds {
			_ = f.Close()
		}
		for _, d := range held {
			_ = d.close()
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("stdout pipe: %w", err))
	}
	held = append(held, newDescriptor("stdout", outR))
	childEnds = append(childEnds, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("stderr pipe: %w", err))
	}
	held = append(held, newDescriptor("stderr", errR))
	childEnds = append(childEnds, errW)

	cmd.Stdout = outW
	cmd.Stderr = errW

	switch spec.Stdin {
	case StdinPipe:
		inR, inW, err := os.Pipe()
		if err != nil {
			return fail(fmt.Errorf("stdin pipe: %w", err))
		}
		held = append(held, newDescriptor("stdin", inW))
		childEnds = append(childEnds, inR)
		cmd.Stdin = inR
		stdinWrite = inW
	case StdinInherit:
		cmd.Stdin = os.Stdin
	default:
		// nil Stdin is /dev/null
	}

	child, err := start(ModeHeadless, cmd, held, childEnds)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrLaunch, spec.Executable, err)
	}
	child.input = stdinWrite
	child.outputs = []Stream{
		{Name: "stdout", File: outR},
		{Name: "stderr", File: errR},
	}
	return child, nil
}

func interactiveEnv(geom terminal.Geometry) []string {
	env := []string{
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
	}
	if geom.Valid() {
		env = append(env,
			"LINES="+strconv.Itoa(geom.Rows),
			"COLUMNS="+strconv.Itoa(geom.Cols),
		)
	}
	return env
}

func headlessEnv() []string {
	return []string{
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
	}
}

// MergeEnv layers KEY=VALUE lists left to right; later layers replace
// earlier keys. Order of first appearance is preserved.
func MergeEnv(layers ...[]string) []string {
	index := make(map[string]int)
	var out []string
	for _, layer := range layers {
		for _, kv := range layer {
			key, _, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				continue
			}
			if i, seen := index[key]; seen {
				out[i] = kv
				continue
			}
			index[key] = len(out)
			out = append(out, kv)
		}
	}
	return out
}
