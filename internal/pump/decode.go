package pump

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns a byte stream into valid UTF-8 text across read
// boundaries. A multi-byte sequence split between two reads is held back
// until the rest arrives; bytes that can never form a valid sequence become
// U+FFFD. Decoding never fails.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder creates a decoder with no pending input.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode consumes p and returns the text that is complete so far.
func (d *Decoder) Decode(p []byte) string {
	return d.run(p, false)
}

// Flush returns whatever is still pending, with an incomplete trailing
// sequence replaced.
func (d *Decoder) Flush() string {
	return d.run(nil, true)
}

func (d *Decoder) run(p []byte, atEOF bool) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	// One invalid byte expands to the three bytes of U+FFFD.
	dst := make([]byte, 3*len(src)+4)
	out := make([]byte, 0, len(src))
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch {
		case err == nil:
			return string(out)
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return string(out)
		case errors.Is(err, transform.ErrShortDst) && nSrc > 0:
			continue
		default:
			// Not expected from the UTF-8 decoder; pass the rest through
			// rather than lose it.
			d.t.Reset()
			return string(append(out, src...))
		}
	}
}
