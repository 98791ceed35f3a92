// Package analytics derives the dashboard figures from a dataset snapshot:
// network KPIs, the partner performance matrix, release velocity, the
// deviation board and Pareto, cycle-time histograms, the regulatory data
// summary and the per-partner deep dive.
//
// Every function is a pure read of the snapshot it is given.
package analytics

import (
	"sort"
	"time"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// AgedDeviationDays is the age past which a deviation counts as overdue.
const AgedDeviationDays = 30

// KPIs are the network health headline numbers.
type KPIs struct {
	TotalLots        int `json:"total_lots"`
	PendingLots      int `json:"pending_lots"`
	ReleasedLots     int `json:"released_lots"`
	AtRiskLots       int `json:"at_risk_lots"`
	ActiveDeviations int `json:"active_deviations"`
	OpenCAPAs        int `json:"open_capas"`
}

// NetworkKPIs computes the headline numbers.
func NetworkKPIs(s *dataset.Snapshot) KPIs {
	var k KPIs
	for _, l := range s.Lots() {
		k.TotalLots++
		if l.Released() {
			k.ReleasedLots++
		} else {
			k.PendingLots++
		}
		if l.AtRisk() {
			k.AtRiskLots++
		}
	}
	for _, d := range s.Deviations() {
		if d.Open() {
			k.ActiveDeviations++
		}
		if d.Status == core.DevCAPAPlan {
			k.OpenCAPAs++
		}
	}
	return k
}

// =============================================================================
// Partner performance
// =============================================================================

// Band is the traffic-light grade of a partner's on-time rate.
type Band string

// Bands.
const (
	BandOnTrack          Band = "On Track"
	BandNeedsImprovement Band = "Needs Improvement"
	BandAtRisk           Band = "At Risk"
)

// BandFor grades an on-time percentage.
func BandFor(onTimePct float64) Band {
	switch {
	case onTimePct < 75:
		return BandAtRisk
	case onTimePct < 90:
		return BandNeedsImprovement
	default:
		return BandOnTrack
	}
}

// PartnerPerformance is one row of the performance matrix.
type PartnerPerformance struct {
	Partner        core.Partner `json:"partner"`
	Lots           int          `json:"lots"`
	OnTimeRate     float64      `json:"on_time_rate"`
	Deviations     int          `json:"deviations"`
	OOSRate        float64      `json:"oos_rate"`
	AgedDeviations int          `json:"aged_deviations"`
	Band           Band         `json:"band"`
}

// OnTimeRate is the percentage of lots whose turnaround met SLA.
// A partner with no lots scores 100.
func OnTimeRate(lots []*core.Lot) float64 {
	if len(lots) == 0 {
		return 100
	}
	onTime := 0
	for _, l := range lots {
		if l.OnTime() {
			onTime++
		}
	}
	return 100 * float64(onTime) / float64(len(lots))
}

// OOSRate is the percentage of deviations typed OOS; 0 when there are none.
func OOSRate(devs []*core.Deviation) float64 {
	if len(devs) == 0 {
		return 0
	}
	oos := 0
	for _, d := range devs {
		if d.Type == core.DeviationOOS {
			oos++
		}
	}
	return 100 * float64(oos) / float64(len(devs))
}

// PartnerMatrix returns one row per partner in catalogue order.
func PartnerMatrix(s *dataset.Snapshot) []PartnerPerformance {
	lotsBy := map[string][]*core.Lot{}
	for _, l := range s.Lots() {
		lotsBy[l.Partner] = append(lotsBy[l.Partner], l)
	}
	devsBy := map[string][]*core.Deviation{}
	for _, d := range s.Deviations() {
		devsBy[d.Partner] = append(devsBy[d.Partner], d)
	}

	out := make([]PartnerPerformance, 0, len(s.Partners()))
	for _, p := range s.Partners() {
		lots, devs := lotsBy[p.Name], devsBy[p.Name]
		row := PartnerPerformance{
			Partner:    p,
			Lots:       len(lots),
			OnTimeRate: OnTimeRate(lots),
			Deviations: len(devs),
			OOSRate:    OOSRate(devs),
		}
		for _, d := range devs {
			if d.AgeDays > AgedDeviationDays {
				row.AgedDeviations++
			}
		}
		row.Band = BandFor(row.OnTimeRate)
		out = append(out, row)
	}
	return out
}

// =============================================================================
// Release velocity
// =============================================================================

// WeekCount is the number of releases in the week starting Monday Week.
type WeekCount struct {
	Week     time.Time `json:"week"`
	Releases int       `json:"releases"`
	Forecast int       `json:"forecast"`
}

// Velocity is weekly release throughput with a naive forecast.
type Velocity struct {
	Weeks []WeekCount `json:"weeks"`
	Mean  float64     `json:"mean"`
}

// WeekStart returns the Monday 00:00 UTC on or before t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// ReleaseVelocity buckets release dates by week, fills empty weeks with
// zero, and keeps the trailing lastWeeks weeks (all when lastWeeks <= 0).
// Each week's forecast is round(count*factor + 1).
func ReleaseVelocity(s *dataset.Snapshot, lastWeeks int) Velocity {
	counts := map[time.Time]int{}
	var first, last time.Time
	for _, l := range s.Lots() {
		if l.ReleasedAt == nil {
			continue
		}
		w := WeekStart(*l.ReleasedAt)
		counts[w]++
		if first.IsZero() || w.Before(first) {
			first = w
		}
		if w.After(last) {
			last = w
		}
	}
	if len(counts) == 0 {
		return Velocity{}
	}

	factor := s.Meta().ForecastFactor
	if factor == 0 {
		factor = 1
	}

	var v Velocity
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		c := counts[w]
		v.Weeks = append(v.Weeks, WeekCount{Week: w, Releases: c, Forecast: roundHalfEven(float64(c)*factor + 1)})
	}
	if lastWeeks > 0 && len(v.Weeks) > lastWeeks {
		v.Weeks = v.Weeks[len(v.Weeks)-lastWeeks:]
	}
	total := 0
	for _, w := range v.Weeks {
		total += w.Releases
	}
	v.Mean = float64(total) / float64(len(v.Weeks))
	return v
}

// =============================================================================
// Regulatory data summary
// =============================================================================

// RegulatorySummary collates a product's lots and deviations over a period.
type RegulatorySummary struct {
	Product    core.Product      `json:"product"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Lots       []*core.Lot       `json:"lots"`
	Released   int               `json:"released"`
	Deviations []*core.Deviation `json:"deviations"`
}

// Regulatory selects lots of product created between from and to, both
// days inclusive, and the deviations raised against them.
func Regulatory(s *dataset.Snapshot, product core.Product, from, to time.Time) (*RegulatorySummary, error) {
	from = dayOf(from)
	to = dayOf(to)
	if from.After(to) {
		return nil, errInvalidRange(from, to)
	}
	end := to.AddDate(0, 0, 1)

	sum := &RegulatorySummary{Product: product, From: from, To: to}
	for _, l := range s.Lots() {
		if l.Product != product || l.CreatedAt.Before(from) || !l.CreatedAt.Before(end) {
			continue
		}
		sum.Lots = append(sum.Lots, l)
		if l.Released() {
			sum.Released++
		}
		sum.Deviations = append(sum.Deviations, s.DeviationsForLot(l.ID)...)
	}
	sort.SliceStable(sum.Lots, func(i, j int) bool { return sum.Lots[i].CreatedAt.Before(sum.Lots[j].CreatedAt) })
	sort.SliceStable(sum.Deviations, func(i, j int) bool { return sum.Deviations[i].ID < sum.Deviations[j].ID })
	return sum, nil
}

// CreatedRange returns the earliest and latest lot creation days, the
// default window of the regulatory summary.
func CreatedRange(s *dataset.Snapshot) (time.Time, time.Time) {
	var lo, hi time.Time
	for _, l := range s.Lots() {
		if lo.IsZero() || l.CreatedAt.Before(lo) {
			lo = l.CreatedAt
		}
		if l.CreatedAt.After(hi) {
			hi = l.CreatedAt
		}
	}
	return dayOf(lo), dayOf(hi)
}

func dayOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
