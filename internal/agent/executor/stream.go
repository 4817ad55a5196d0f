package executor

import (
	"regexp"
	"strings"
)

// ansiPattern matches CSI and OSC terminal control sequences the agent CLI
// mixes into its stdout.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// stripANSI removes terminal control sequences from a chunk of output.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// lineScanner reassembles a chunked byte stream into whole lines.
//
// Marker detection has to happen on complete lines: a chunk boundary can fall
// in the middle of a marker or its payload, so a partial trailing line is
// carried over and prepended to the next chunk.
type lineScanner struct {
	partial string
	handle  func(line string)
}

func newLineScanner(handle func(line string)) *lineScanner {
	return &lineScanner{handle: handle}
}

// Write feeds a raw output chunk to the scanner. Complete lines are stripped
// of ANSI sequences and passed to the handler; the trailing partial line is
// held back.
func (s *lineScanner) Write(chunk string) {
	data := s.partial + chunk
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(data[:idx], "\r")
		s.handle(stripANSI(line))
		data = data[idx+1:]
	}
	s.partial = data
}

// Flush emits any held-back partial line as a final line.
func (s *lineScanner) Flush() {
	if s.partial != "" {
		s.handle(stripANSI(s.partial))
		s.partial = ""
	}
}

// extractMarker returns the payload following a marker on a line, and whether
// the marker was present. The payload is the trimmed remainder of the line.
func extractMarker(line, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	idx := strings.Index(line, marker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(marker):]), true
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
