package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineSplitter(t *testing.T) {
	var s LineSplitter

	assert.Empty(t, s.Push(`{"type":"in`))
	assert.Equal(t, []string{`{"type":"init"}`, "second"}, s.Push("it\"}\nsecond\r\nthi"))
	assert.Equal(t, []string{"third", ""}, s.Push("rd\n\n"))
}

func TestLineSplitterFlush(t *testing.T) {
	var s LineSplitter

	assert.Empty(t, s.Push("no newline\r"))
	assert.Equal(t, "no newline", s.Flush())
	assert.Empty(t, s.Flush())
}

func TestLineSplitterBoundsPartial(t *testing.T) {
	s := LineSplitter{MaxLine: 4}

	assert.Equal(t, []string{"abcdef"}, s.Push("abcdef"))
	assert.Empty(t, s.Flush())
}
