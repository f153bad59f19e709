package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

var sessionIDRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

var idKeys = []string{"session_id", "sessionId"}

// noticeWindow bounds how much of the previous chunk is kept so a notice
// split across reads is still recognized.
const noticeWindow = 256

// Framer classifies output into records and numbers them. One framer
// serves one session; it is not safe for concurrent use.
type Framer struct {
	seq *atomic.Uint64

	notice     *regexp.Regexp
	window     string
	noticeSeen bool

	// skip is never taken from free text.
	skip string
}

// NewFramer creates a framer that draws sequence numbers from seq. Passing
// nil gives the framer its own counter.
func NewFramer(seq *atomic.Uint64) *Framer {
	if seq == nil {
		seq = new(atomic.Uint64)
	}
	return &Framer{seq: seq}
}

// WatchNotice arms detection of "<marker> exit=<code>" lines in the
// stream. The first occurrence produces a KindNotice record.
func (f *Framer) WatchNotice(marker string) {
	f.notice = regexp.MustCompile(regexp.QuoteMeta(marker) + ` exit=(\d+)\r?\n`)
	f.window = ""
	f.noticeSeen = false
}

// SkipPatternID keeps id from being picked out of unstructured text. A
// resume attempt echoes the identifier it was asked for, including when
// that identifier no longer exists.
func (f *Framer) SkipPatternID(id string) {
	f.skip = id
}

// Frame classifies one line or chunk.
//
// Text that parses as a JSON object is structured; its identifier is looked
// up at the top level first, then under "metadata". Anything else is text,
// and only then is the raw payload searched for a UUID-shaped token.
func (f *Framer) Frame(text, stream string) Record {
	rec := Record{
		Seq:     f.seq.Add(1),
		Kind:    KindText,
		Stream:  stream,
		Payload: text,
		At:      time.Now(),
	}

	if obj, ok := parseObject(text); ok {
		rec.Kind = KindStructured
		if t, ok := obj["type"].(string); ok {
			rec.Event = t
		}
		if id := lookupID(obj); id != "" {
			rec.SessionID, rec.SessionIDSource = id, SourceTopLevel
		} else if meta, ok := obj["metadata"].(map[string]any); ok {
			if id := lookupID(meta); id != "" {
				rec.SessionID, rec.SessionIDSource = id, SourceMetadata
			}
		}
		return rec
	}

	if id := matchID(text, f.skip); id != "" {
		rec.SessionID, rec.SessionIDSource = id, SourcePattern
	}
	return rec
}

// Opaque frames text without classifying it. Used for streams that are
// never structured, such as a headless agent's stderr.
func (f *Framer) Opaque(text, stream string) Record {
	return Record{
		Seq:     f.seq.Add(1),
		Kind:    KindText,
		Stream:  stream,
		Payload: text,
		At:      time.Now(),
	}
}

// FrameChunk frames a terminal chunk. When a watched notice completes in
// it, the chunk is split after the notice line so output from before and
// after the failure never shares a record, and the notice record goes
// between the two.
func (f *Framer) FrameChunk(text, stream string) []Record {
	if text == "" {
		return nil
	}
	if f.notice == nil || f.noticeSeen {
		return []Record{f.Frame(text, stream)}
	}

	scan := f.window + text
	loc := f.notice.FindStringSubmatchIndex(scan)
	if loc == nil {
		if len(scan) > noticeWindow {
			scan = scan[len(scan)-noticeWindow:]
		}
		f.window = scan
		return []Record{f.Frame(text, stream)}
	}

	f.noticeSeen = true
	f.window = ""
	code, _ := strconv.Atoi(scan[loc[2]:loc[3]])
	cut := max(loc[1]-len(scan)+len(text), 0)

	var out []Record
	if head := text[:cut]; head != "" {
		out = append(out, f.Frame(head, stream))
	}
	out = append(out, f.Notice(Notice{ResumeFailed: true, FailedExit: code}))
	if rest := text[cut:]; rest != "" {
		out = append(out, f.Frame(rest, stream))
	}
	return out
}

// Notice builds a notice record.
func (f *Framer) Notice(n Notice) Record {
	return Record{
		Seq:    f.seq.Add(1),
		Kind:   KindNotice,
		Notice: &n,
		At:     time.Now(),
	}
}

// ExitRecord builds the final record of a run.
func (f *Framer) ExitRecord(code int, reason string) Record {
	return Record{
		Seq:  f.seq.Add(1),
		Kind: KindExit,
		Exit: &Exit{Code: code, Reason: reason},
		At:   time.Now(),
	}
}

func parseObject(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil, false
	}
	var obj map[string]any
	if err := sonic.UnmarshalString(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func lookupID(obj map[string]any) string {
	for _, key := range idKeys {
		if id, ok := obj[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

func matchID(text, skip string) string {
	for _, candidate := range sessionIDRe.FindAllString(text, -1) {
		if skip != "" && strings.EqualFold(candidate, skip) {
			continue
		}
		if _, err := uuid.Parse(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
