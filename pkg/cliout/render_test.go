package cliout

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestRenderTapStats_ShowsDroppedCount(t *testing.T) {
	out := captureStdout(t, func() { RenderTapStats(42) })
	if !strings.Contains(out, "42") {
		t.Errorf("expected dropped count 42 in output, got:\n%s", out)
	}
}
