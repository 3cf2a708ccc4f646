package cliout

import (
	"strings"
	"testing"
)

func TestTable_Flush_AlignsColumnsToWidestValue(t *testing.T) {
	tbl := NewTable("SWITCH", "DPID")
	tbl.Row("sw-core1", "1")
	tbl.Row("sw-border-west", "2")

	out := captureStdout(t, tbl.Flush)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 { // header, divider, 2 rows
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[2], "sw-core1        ") {
		t.Errorf("expected the shorter row padded to the widest column, got %q", lines[2])
	}
}

func TestTable_Flush_EmptyProducesNoOutput(t *testing.T) {
	tbl := NewTable("SWITCH", "DPID")
	out := captureStdout(t, tbl.Flush)
	if out != "" {
		t.Errorf("expected no output for a table with no rows, got %q", out)
	}
}

func TestTable_Flush_PrintsDashDivider(t *testing.T) {
	tbl := NewTable("IP", "MAC")
	tbl.Row("10.0.0.1", "00:11:22:33:44:55")

	out := captureStdout(t, tbl.Flush)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "--") {
		t.Errorf("expected a dash divider on line 2, got %q", lines[1])
	}
}

func TestVisualLen_IgnoresANSIEscapes(t *testing.T) {
	if got := visualLen(Red("unreachable")); got != len("unreachable") {
		t.Errorf("visualLen(colored) = %d, want %d", got, len("unreachable"))
	}
}

func TestTable_Flush_ColoredCellsStayAligned(t *testing.T) {
	tbl := NewTable("SRC", "DST", "PATH")
	tbl.Row("sw1", "sw2", Red("unreachable"))
	tbl.Row("sw1", "sw3", "1 -> 3")

	out := captureStdout(t, tbl.Flush)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// The colored cell's escape codes must not inflate the column width
	// used to pad the following (nonexistent, since PATH is last) column —
	// but they must also not throw off the divider width.
	if !strings.Contains(lines[1], strings.Repeat("-", len("unreachable"))) {
		t.Errorf("expected the PATH divider sized to the visible width of %q, got %q", "unreachable", lines[1])
	}
}
