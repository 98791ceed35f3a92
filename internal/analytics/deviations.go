package analytics

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Deviation board thresholds, in days.
const (
	WarningAgeDays  = 30
	CriticalAgeDays = 60
	// ClosureTargetDays is the cycle-time goal drawn on the closure histogram.
	ClosureTargetDays = 30
	closureBins       = 10
)

// Severity colours a board card by age.
type Severity string

// Severities.
const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityFor grades a deviation age.
func SeverityFor(ageDays int) Severity {
	switch {
	case ageDays > CriticalAgeDays:
		return SeverityCritical
	case ageDays > WarningAgeDays:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// Card is one deviation on the board.
type Card struct {
	Deviation *core.Deviation `json:"deviation"`
	Severity  Severity        `json:"severity"`
}

// Column is one workflow stage of the board.
type Column struct {
	Status core.DeviationStatus `json:"status"`
	Cards  []Card               `json:"cards"`
}

// Filter narrows the deviation views. Zero fields match everything.
type Filter struct {
	Product core.Product
	Partner string
	Type    core.DeviationType
}

func (f Filter) match(d *core.Deviation) bool {
	return (f.Product == "" || d.Product == f.Product) &&
		(f.Partner == "" || d.Partner == f.Partner) &&
		(f.Type == "" || d.Type == f.Type)
}

// ParseFilter validates the product, partner and type selections. Empty
// values match everything.
func ParseFilter(snap *dataset.Snapshot, v map[string]string) (Filter, error) {
	var f Filter
	if s := v["product"]; s != "" {
		p, err := core.ParseProduct(s)
		if err != nil {
			return f, err
		}
		f.Product = p
	}
	if s := v["partner"]; s != "" {
		if _, ok := snap.Partner(s); !ok {
			return f, fmt.Errorf("unknown partner %q", s)
		}
		f.Partner = s
	}
	if s := v["type"]; s != "" {
		t := core.DeviationType(s)
		if !t.Valid() {
			return f, fmt.Errorf("unknown deviation type %q", s)
		}
		f.Type = t
	}
	return f, nil
}

// FilterDeviations returns the deviations matching f in snapshot order.
func FilterDeviations(s *dataset.Snapshot, f Filter) []*core.Deviation {
	var out []*core.Deviation
	for _, d := range s.Deviations() {
		if f.match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Board groups deviations into one column per workflow status, in workflow
// order. Cards within a column are oldest first.
func Board(s *dataset.Snapshot, f Filter) []Column {
	cols := make([]Column, len(core.DeviationStatuses))
	for i, st := range core.DeviationStatuses {
		cols[i].Status = st
	}
	for _, d := range FilterDeviations(s, f) {
		i := d.Status.Rank()
		if i < 0 || i >= len(cols) {
			continue
		}
		cols[i].Cards = append(cols[i].Cards, Card{Deviation: d, Severity: SeverityFor(d.AgeDays)})
	}
	for i := range cols {
		cards := cols[i].Cards
		sort.SliceStable(cards, func(a, b int) bool {
			if cards[a].Deviation.AgeDays != cards[b].Deviation.AgeDays {
				return cards[a].Deviation.AgeDays > cards[b].Deviation.AgeDays
			}
			return cards[a].Deviation.ID < cards[b].Deviation.ID
		})
	}
	return cols
}

// CauseCount is one bar of the Pareto chart.
type CauseCount struct {
	RootCause  string  `json:"root_cause"`
	Count      int     `json:"count"`
	Cumulative float64 `json:"cumulative_pct"`
}

// OOSPareto counts OOS deviations by root cause, most frequent first.
// Cumulative carries the running share of all OOS events. It returns nil
// when there are no OOS deviations.
func OOSPareto(s *dataset.Snapshot, f Filter) []CauseCount {
	f.Type = core.DeviationOOS
	counts := map[string]int{}
	total := 0
	for _, d := range FilterDeviations(s, f) {
		counts[d.RootCause]++
		total++
	}
	if total == 0 {
		return nil
	}

	out := make([]CauseCount, 0, len(counts))
	for cause, n := range counts {
		out = append(out, CauseCount{RootCause: cause, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RootCause < out[j].RootCause
	})
	running := 0
	for i := range out {
		running += out[i].Count
		out[i].Cumulative = 100 * float64(running) / float64(total)
	}
	return out
}

// Closure summarises cycle times of closed deviations.
type Closure struct {
	Bins         []Bin   `json:"bins"`
	Closed       int     `json:"closed"`
	MeanAgeDays  float64 `json:"mean_age_days"`
	WithinTarget int     `json:"within_target"`
	TargetDays   int     `json:"target_days"`
}

// ClosureTimes histograms the ages of closed deviations.
func ClosureTimes(s *dataset.Snapshot, f Filter) Closure {
	c := Closure{TargetDays: ClosureTargetDays}
	var ages []float64
	for _, d := range FilterDeviations(s, f) {
		if d.Status != core.DevClosed {
			continue
		}
		ages = append(ages, float64(d.AgeDays))
		if d.AgeDays <= ClosureTargetDays {
			c.WithinTarget++
		}
	}
	c.Closed = len(ages)
	if c.Closed == 0 {
		return c
	}
	sum := 0.0
	for _, a := range ages {
		sum += a
	}
	c.MeanAgeDays = sum / float64(c.Closed)
	c.Bins = Histogram(ages, closureBins)
	return c
}
