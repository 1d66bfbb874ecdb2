package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jfellner/revcounter/internal/logic"
)

// FormatSummary returns the human readable summary printed on exit.
func FormatSummary(sum logic.Summary, counts logic.Counts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "elapsed:     %s\n", sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "samples:     %s\n", humanize.Comma(sum.Samples))
	fmt.Fprintf(&b, "sampling:    %s Hz\n", humanize.CommafWithDigits(sum.SampleHz, 1))
	fmt.Fprintf(&b, "transitions: %s (%d rising, %d falling)\n",
		humanize.Comma(sum.Transitions), counts.Rising, counts.Falling)
	fmt.Fprintf(&b, "ignored:     %s\n", humanize.Comma(sum.Ignored))
	return b.String()
}

// FormatRate returns the console line of a rate snapshot.
func FormatRate(rate logic.RateSnapshot, voltage float64) string {
	return fmt.Sprintf("rps %.2f rpm %.2f voltage %.2f", rate.RPS, rate.RPM, voltage)
}

// LCDLines returns the two 16 character rows shown while counting.
func LCDLines(snap Snapshot) (string, string) {
	top := fmt.Sprintf("rpm %7.1f %s", snap.Rate.RPM, snap.State)
	bottom := fmt.Sprintf("n %d i %d", snap.Counts.Accepted(), snap.Counts.Ignored)
	return top, bottom
}
