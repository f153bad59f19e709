package supervisor

import (
	"strings"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
)

// handler feeds one child's output through the pipeline. It runs on the
// pump goroutine only.
type handler struct {
	r      *run
	order  []string
	splits map[string]*pipeline.LineSplitter
}

func newHandler(r *run, streams []string) *handler {
	h := &handler{r: r, order: streams, splits: make(map[string]*pipeline.LineSplitter, len(streams))}
	for _, s := range streams {
		h.splits[s] = &pipeline.LineSplitter{}
	}
	return h
}

func (h *handler) Read(stream string, n int) {
	h.r.sess.metrics().Read(string(h.r.mode), stream, n)
}

func (h *handler) Text(stream, text string) {
	if h.r.mode == launch.ModeInteractive {
		h.terminal(stream, h.r.cond.Feed(text))
		return
	}

	split, ok := h.splits[stream]
	if !ok {
		split = &pipeline.LineSplitter{}
		h.splits[stream] = split
		h.order = append(h.order, stream)
	}
	for _, line := range split.Push(text) {
		h.line(stream, line)
	}
}

func (h *handler) Idle() {
	if h.r.mode == launch.ModeInteractive {
		h.terminal("pty", h.r.cond.Flush())
	}
}

// flush emits whatever is still buffered once the child's output ends.
func (h *handler) flush() {
	if h.r.mode == launch.ModeInteractive {
		h.Idle()
		return
	}
	for _, stream := range h.order {
		if rest := h.splits[stream].Flush(); rest != "" {
			h.line(stream, rest)
		}
	}
}

func (h *handler) terminal(stream string, parts []string) {
	if len(parts) == 0 {
		return
	}
	text := strings.Join(parts, "")
	for _, rec := range h.r.framer.FrameChunk(text, stream) {
		h.r.deliver(rec)
	}
}

// line frames one headless line. Empty lines carry nothing and are skipped;
// whitespace-only lines are forwarded as text like any other content.
func (h *handler) line(stream, line string) {
	if line == "" {
		return
	}
	if stream == "stderr" {
		h.r.deliver(h.r.framer.Opaque(line, stream))
		return
	}
	h.r.deliver(h.r.framer.Frame(line, stream))
}
