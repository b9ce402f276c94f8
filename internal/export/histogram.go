package export

import (
	"fmt"
	"io"
	"math"
	"strings"
)

const histogramWidth = 50

// Histogram prints the distribution of RSI values over [0, 100] in bins buckets.
// Buckets whose lower edge equals a marker are tagged, e.g. 30 and 70.
func Histogram(w io.Writer, title string, values []float64, bins int, markers ...float64) {
	if bins <= 0 {
		bins = 20
	}
	width := 100.0 / float64(bins)

	counts := make([]int, bins)
	peak := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		i := int(v / width)
		i = max(0, min(i, bins-1))
		counts[i]++
		peak = max(peak, counts[i])
	}

	fmt.Fprintf(w, "%s (n=%d)\n", title, len(values))
	for i, c := range counts {
		lo := float64(i) * width
		bar := 0
		if peak > 0 {
			bar = int(math.Round(float64(c) * histogramWidth / float64(peak)))
		}
		mark := ""
		for _, m := range markers {
			if m >= lo && m < lo+width {
				mark = fmt.Sprintf("  <- %g", m)
			}
		}
		fmt.Fprintf(w, "%5.1f-%5.1f |%-*s %d%s\n", lo, lo+width, histogramWidth, strings.Repeat("#", bar), c, mark)
	}
}
