package serial

import (
	"bytes"
	"strings"
)

// LineFramer assembles newline-terminated text lines out of arbitrary byte
// chunks read from the serial port. Chunk boundaries carry no meaning: a read
// may deliver half a line or several lines at once, and the framer buffers the
// trailing partial line until its newline arrives.
//
// A framer belongs to one connection; Reset discards any buffered partial
// line when the connection is reopened.
type LineFramer struct {
	partial []byte
}

// Push appends a chunk and returns every complete line it closed off.
// Lines are returned in read order with CR/LF stripped, leading/trailing
// whitespace trimmed and invalid UTF-8 sequences dropped (hardware boot
// output is not guaranteed clean). Empty lines are suppressed.
func (f *LineFramer) Push(chunk []byte) []string {
	f.partial = append(f.partial, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			break
		}
		raw := f.partial[:idx]
		f.partial = f.partial[idx+1:]

		line := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Reset drops any buffered partial line.
func (f *LineFramer) Reset() {
	f.partial = nil
}
