package cliout

import "fmt"

// RenderTapStats prints the TAP bridge's inbound-queue drop counter, for
// "meridianctl show tap-stats".
func RenderTapStats(dropped uint64) {
	t := NewTable("METRIC", "VALUE")
	t.Row("dropped_frames", fmt.Sprintf("%d", dropped))
	t.Flush()
}
