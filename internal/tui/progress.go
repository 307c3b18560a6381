package tui

import (
	"regexp"
	"strconv"
)

var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// parsePercent extracts the completion fraction from a downloader progress
// line such as "[download]  42.3% of 10.00MiB at 1.20MiB/s ETA 00:05".
func parsePercent(raw string) (float64, bool) {
	m := percentRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(v, 100) / 100, true
}
