package pipeline

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Suppression rule names, reported through OnSuppress.
const (
	RuleClearScreen    = "clear_screen"
	RuleCursorRun      = "cursor_run"
	RuleLineClear      = "line_clear"
	RuleTaskRepeat     = "task_repeat"
	RuleProgressRepeat = "progress_repeat"
	RuleBlankRun       = "blank_run"
)

const (
	cursorRunKeep     = 10
	lineClearGap      = 5
	taskRepeatLimit   = 2
	progressLookback  = 5
	defaultCarryLimit = 64 * 1024
)

var (
	clearScreenRe = regexp.MustCompile(`\x1b\[2J`)
	cursorRunRe   = regexp.MustCompile(`(?:\x1b\[[0-9;]*[A-H]|\x1b\[[0-9;]*f){4,}`)
	lineClearRe   = regexp.MustCompile(`\x1b\[[012]?K`)
	ansiRe        = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[@-Z\\-_])`)
	taskRe        = regexp.MustCompile(`^\s*(?:⏺|●)\s`)
	progressRe    = regexp.MustCompile(`^\s*[✻✶✳✢✽·]\s`)
	parenRe       = regexp.MustCompile(`\([^)]*\)`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// ConditionerOptions configures a Conditioner.
type ConditionerOptions struct {
	// Enabled selects full conditioning; when false Feed passes text
	// through untouched and nothing is carried.
	Enabled bool
	// CarryLimit bounds the partial-line buffer. A longer partial line is
	// forwarded as-is.
	CarryLimit int
	// OnSuppress is told how much each rule removed.
	OnSuppress func(rule string, n int)
	Logger     *zap.Logger
}

// Conditioner smooths a redraw-heavy terminal stream. It holds per-session
// state and is not safe for concurrent use; the pump is its only caller.
type Conditioner struct {
	enabled    bool
	carryLimit int
	onSuppress func(string, int)
	log        *zap.Logger

	carry      string
	lastTask   string
	taskRepeat int
	recent     []string
	lastBlank  bool
}

// NewConditioner creates a conditioner with empty state.
func NewConditioner(opts ConditionerOptions) *Conditioner {
	if opts.CarryLimit <= 0 {
		opts.CarryLimit = defaultCarryLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Conditioner{
		enabled:    opts.Enabled,
		carryLimit: opts.CarryLimit,
		onSuppress: opts.OnSuppress,
		log:        opts.Logger,
		recent:     make([]string, 0, progressLookback),
	}
}

// Enabled reports whether the conditioner filters or passes through.
func (c *Conditioner) Enabled() bool {
	return c.enabled
}

// Feed accepts decoded text and returns what should be forwarded now.
// Each complete line keeps its trailing newline, so concatenating the
// result reproduces the forwarded bytes exactly.
func (c *Conditioner) Feed(text string) (out []string) {
	if !c.enabled {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	buf := c.carry + text
	c.carry = ""
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("Conditioner failed, forwarding raw output", zap.Any("panic", r))
			out = []string{buf}
		}
	}()

	conditioned := c.collapse(buf)
	lines := strings.Split(conditioned, "\n")
	tail := lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	out = make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if c.keep(line) {
			out = append(out, line+"\n")
		}
	}

	if len(tail) > c.carryLimit {
		out = append(out, tail)
	} else {
		c.carry = tail
	}
	return out
}

// Flush forwards the partial line held back from earlier reads. The pump
// calls it when output goes quiet so a prompt without a newline is shown.
func (c *Conditioner) Flush() []string {
	if c.carry == "" {
		return nil
	}
	tail := c.carry
	c.carry = ""
	return []string{tail}
}

func (c *Conditioner) collapse(buf string) string {
	if m := clearScreenRe.FindAllStringIndex(buf, -1); len(m) > 1 {
		var b strings.Builder
		b.Grow(len(buf))
		prev := 0
		for _, loc := range m[:len(m)-1] {
			b.WriteString(buf[prev:loc[0]])
			prev = loc[1]
		}
		b.WriteString(buf[prev:])
		buf = b.String()
		c.suppressed(RuleClearScreen, len(m)-1)
	}

	runs := 0
	buf = cursorRunRe.ReplaceAllStringFunc(buf, func(run string) string {
		if len(run) <= cursorRunKeep {
			return run
		}
		runs++
		return run[len(run)-cursorRunKeep:]
	})
	c.suppressed(RuleCursorRun, runs)

	return c.collapseLineClears(buf)
}

// collapseLineClears keeps only the last erase-line sequence of each cluster
// whose members are separated by fewer than lineClearGap visible characters.
func (c *Conditioner) collapseLineClears(buf string) string {
	m := lineClearRe.FindAllStringIndex(buf, -1)
	if len(m) < 2 {
		return buf
	}

	drop := make([]bool, len(m))
	dropped := 0
	for i := 1; i < len(m); i++ {
		if visible(buf[m[i-1][1]:m[i][0]]) < lineClearGap {
			drop[i-1] = true
			dropped++
		}
	}
	if dropped == 0 {
		return buf
	}

	var b strings.Builder
	b.Grow(len(buf))
	prev := 0
	for i, loc := range m {
		if drop[i] {
			b.WriteString(buf[prev:loc[0]])
			prev = loc[1]
		}
	}
	b.WriteString(buf[prev:])
	c.suppressed(RuleLineClear, dropped)
	return b.String()
}

func (c *Conditioner) keep(line string) bool {
	if strings.TrimSpace(line) == "" {
		if c.lastBlank {
			c.suppressed(RuleBlankRun, 1)
			return false
		}
		c.lastBlank = true
		return true
	}

	plain := StripANSI(line)
	if !taskRe.MatchString(plain) {
		c.lastTask, c.taskRepeat = "", 0
	}

	switch {
	case taskRe.MatchString(plain):
		key := strings.TrimSpace(plain)
		if key == c.lastTask {
			c.taskRepeat++
		} else {
			c.lastTask = key
			c.taskRepeat = 1
		}
		if c.taskRepeat > taskRepeatLimit {
			c.suppressed(RuleTaskRepeat, 1)
			return false
		}
	case isProgress(plain):
		key := progressKey(plain)
		for _, seen := range c.recent {
			if seen == key {
				c.suppressed(RuleProgressRepeat, 1)
				return false
			}
		}
		if len(c.recent) == progressLookback {
			copy(c.recent, c.recent[1:])
			c.recent = c.recent[:progressLookback-1]
		}
		c.recent = append(c.recent, key)
	}

	c.lastBlank = false
	return true
}

func (c *Conditioner) suppressed(rule string, n int) {
	if n > 0 && c.onSuppress != nil {
		c.onSuppress(rule, n)
	}
}

func isProgress(plain string) bool {
	if progressRe.MatchString(plain) {
		return true
	}
	lower := strings.ToLower(plain)
	return strings.Contains(lower, "esc to interrupt")
}

func progressKey(plain string) string {
	key := parenRe.ReplaceAllString(plain, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(key, " "))
}

func visible(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r', '\n', '\v', '\f':
		default:
			n++
		}
	}
	return n
}

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
