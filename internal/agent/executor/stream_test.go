package executor

import (
	"reflect"
	"testing"
)

func TestStripANSI(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"\x1b[32mgreen\x1b[0m", "green"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
		{"\x1b]0;title\x07body", "body"},
	}
	for _, tc := range cases {
		if got := stripANSI(tc.in); got != tc.want {
			t.Errorf("stripANSI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLineScannerReassemblesSplitLines(t *testing.T) {
	var lines []string
	s := newLineScanner(func(line string) { lines = append(lines, line) })

	// A marker split across three chunks must still arrive as one line.
	s.Write("working...\n[NOT")
	s.Write("IFY] deploy fin")
	s.Write("ished\npartial")
	s.Flush()

	want := []string{"working...", "[NOTIFY] deploy finished", "partial"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}

func TestLineScannerStripsANSIPerLine(t *testing.T) {
	var lines []string
	s := newLineScanner(func(line string) { lines = append(lines, line) })

	s.Write("\x1b[1m[NOTIFY]\x1b[0m build done\r\n")

	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	payload, ok := extractMarker(lines[0], "[NOTIFY]")
	if !ok {
		t.Fatalf("marker not found in %q", lines[0])
	}
	if payload != "build done" {
		t.Errorf("payload = %q, want %q", payload, "build done")
	}
}

func TestExtractMarker(t *testing.T) {
	if _, ok := extractMarker("no marker here", "[NOTIFY]"); ok {
		t.Error("extractMarker() found a marker in plain text")
	}
	if _, ok := extractMarker("[NOTIFY] x", ""); ok {
		t.Error("extractMarker() matched an empty marker")
	}
	payload, ok := extractMarker("prefix [APPROVAL]  run rm -rf build  ", "[APPROVAL]")
	if !ok || payload != "run rm -rf build" {
		t.Errorf("payload = %q, ok = %v", payload, ok)
	}
}

func TestContainsAny(t *testing.T) {
	sigs := []string{"No previous sessions found", "Error resuming session"}
	if !containsAny("gemini: Error resuming session: latest", sigs) {
		t.Error("containsAny() missed a signature")
	}
	if containsAny("all good", sigs) {
		t.Error("containsAny() matched clean output")
	}
	if containsAny("anything", []string{""}) {
		t.Error("containsAny() matched an empty signature")
	}
}
