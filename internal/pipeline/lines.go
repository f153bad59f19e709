package pipeline

import "strings"

// DefaultMaxLine bounds a single buffered line. Structured output can carry
// whole file contents, so the limit is generous.
const DefaultMaxLine = 4 << 20

// LineSplitter turns a chunked stream into complete lines. The zero value
// uses DefaultMaxLine.
type LineSplitter struct {
	MaxLine int
	partial strings.Builder
}

// Push adds text and returns the lines it completed, without their line
// terminators. A partial line longer than MaxLine is returned as a line.
func (s *LineSplitter) Push(text string) []string {
	var lines []string
	for text != "" {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			s.partial.WriteString(text)
			break
		}
		s.partial.WriteString(text[:i])
		lines = append(lines, strings.TrimSuffix(s.partial.String(), "\r"))
		s.partial.Reset()
		text = text[i+1:]
	}

	limit := s.MaxLine
	if limit <= 0 {
		limit = DefaultMaxLine
	}
	if s.partial.Len() > limit {
		lines = append(lines, s.partial.String())
		s.partial.Reset()
	}
	return lines
}

// Flush returns the unterminated remainder, if any.
func (s *LineSplitter) Flush() string {
	rest := strings.TrimSuffix(s.partial.String(), "\r")
	s.partial.Reset()
	return rest
}
