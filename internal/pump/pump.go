package pump

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// EndReason says why Run returned.
type EndReason string

const (
	// EndExited: the child was reaped while no data was pending.
	EndExited EndReason = "exited"
	// EndClosed: every descriptor reached EOF or was torn down.
	EndClosed EndReason = "closed"
	// EndStopped: the caller's continue flag went false.
	EndStopped EndReason = "stopped"
	// EndError: readiness polling itself failed.
	EndError EndReason = "error"
)

// Input is one descriptor the pump reads.
type Input struct {
	Stream string
	File   *os.File
}

// Source is everything the pump watches for a session.
type Source struct {
	Inputs []Input
	// Exited is closed when the child has been reaped.
	Exited <-chan struct{}
	// Continue is checked every iteration; returning false ends the pump.
	Continue func() bool
}

// Handler receives decoded text in arrival order. It runs on the pump's
// goroutine.
type Handler interface {
	// Text is called for every decoded chunk.
	Text(stream, text string)
	// Read reports raw byte counts, before decoding.
	Read(stream string, n int)
	// Idle is called after a poll interval passes with no data.
	Idle()
}

// Options tunes the read loop.
type Options struct {
	PollTimeout time.Duration
	ChunkSize   int
	Logger      *zap.Logger
}

const (
	DefaultPollTimeout = time.Second
	DefaultChunkSize   = 4096
)

type input struct {
	Input
	fd   int
	dec  *Decoder
	done bool
}

// Run reads src until the child is gone, every descriptor is closed, or
// src.Continue returns false. It blocks; callers give it its own goroutine.
//
// A poll timeout with no data is only an end condition once the child has
// exited. Decoding is permissive and never ends the loop.
func Run(src Source, opts Options, h Handler) EndReason {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cont := src.Continue
	if cont == nil {
		cont = func() bool { return true }
	}

	inputs := make([]*input, 0, len(src.Inputs))
	for _, in := range src.Inputs {
		inputs = append(inputs, &input{Input: in, fd: int(in.File.Fd()), dec: NewDecoder()})
	}
	// Emit whatever the decoders still hold on every exit path.
	defer func() {
		for _, in := range inputs {
			if tail := in.dec.Flush(); tail != "" {
				h.Text(in.Stream, tail)
			}
		}
	}()

	timeoutMs := int(opts.PollTimeout / time.Millisecond)
	buf := make([]byte, opts.ChunkSize)
	var (
		fds   []unix.PollFd
		index []*input
	)

	for {
		if !cont() {
			return EndStopped
		}

		fds, index = fds[:0], index[:0]
		for _, in := range inputs {
			if !in.done {
				fds = append(fds, unix.PollFd{Fd: int32(in.fd), Events: unix.POLLIN})
				index = append(index, in)
			}
		}
		if len(fds) == 0 {
			// Nothing left to read. Give the child one interval to be
			// reaped so its exit status is not lost to a teardown kill.
			select {
			case <-src.Exited:
			case <-time.After(opts.PollTimeout):
			}
			return EndClosed
		}

		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Warn("Poll failed", zap.Error(err))
			return EndError
		}

		if n == 0 {
			if exited(src.Exited) {
				return EndExited
			}
			h.Idle()
			continue
		}

		for i, pfd := range fds {
			in := index[i]
			switch {
			case pfd.Revents&unix.POLLNVAL != 0:
				log.Debug("Descriptor invalid", zap.String("stream", in.Stream))
				in.done = true
			case pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0:
				readOnce(in, buf, h, log)
			}
		}
	}
}

func readOnce(in *input, buf []byte, h Handler, log *zap.Logger) {
	n, err := in.File.Read(buf)
	if n > 0 {
		h.Read(in.Stream, n)
		if text := in.dec.Decode(buf[:n]); text != "" {
			h.Text(in.Stream, text)
		}
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return
	case errors.Is(err, io.EOF):
		log.Debug("Stream reached EOF", zap.String("stream", in.Stream))
	case errors.Is(err, syscall.EIO):
		// A terminal master reports EIO once the last slave holder is gone.
		log.Debug("Terminal closed", zap.String("stream", in.Stream))
	default:
		log.Debug("Read ended", zap.String("stream", in.Stream), zap.Error(err))
	}
	in.done = true
}

func exited(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
