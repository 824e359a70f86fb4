package stream

import (
	"bufio"
	"io"
	"strings"
)

// LineScanner incrementally decodes a byte stream into text lines. It
// tolerates partial reads and arbitrary line lengths, drops invalid UTF-8
// sequences instead of failing, and strips trailing CR/LF from every
// line. A zero-length read ends the sequence without error. One scanner
// serves exactly one connection.
type LineScanner struct {
	r    *bufio.Reader
	line string
	err  error
	done bool
}

// NewLineScanner wraps r, typically a streaming HTTP response body.
func NewLineScanner(r io.Reader) *LineScanner {
	return &LineScanner{r: bufio.NewReader(r)}
}

// Scan advances to the next line. It returns false when the stream has
// ended; check Err afterwards to distinguish EOF from a read failure.
func (s *LineScanner) Scan() bool {
	if s.done {
		return false
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		s.done = true
		if err != io.EOF {
			s.err = err
		}
		// A final unterminated line is still a line.
		if len(line) == 0 {
			return false
		}
	}

	s.line = strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), "")
	return true
}

// Text returns the most recent line.
func (s *LineScanner) Text() string {
	return s.line
}

// Err returns the first read failure, or nil when the stream ended cleanly.
func (s *LineScanner) Err() error {
	return s.err
}
