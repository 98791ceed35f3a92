package analytics

import (
	"fmt"
	"math"
	"time"
)

// Bin is one equal-width histogram bucket covering [Lo, Hi). The last bin
// of a histogram also includes Hi.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram splits values into n equal-width bins spanning their range.
// When every value is identical the range is widened to v±0.5.
func Histogram(values []float64, n int) []Bin {
	if len(values) == 0 || n <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(n)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lo = lo + float64(i)*width
		bins[i].Hi = lo + float64(i+1)*width
	}
	bins[n-1].Hi = hi

	for _, v := range values {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		bins[i].Count++
	}
	return bins
}

// MaxCount returns the tallest bin, for scaling bar renderings.
func MaxCount(bins []Bin) int {
	m := 0
	for _, b := range bins {
		m = max(m, b.Count)
	}
	return m
}

func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

func errInvalidRange(from, to time.Time) error {
	return fmt.Errorf("invalid date range: start %s is after end %s",
		from.Format(time.DateOnly), to.Format(time.DateOnly))
}
