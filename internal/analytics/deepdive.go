package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Process capability limits for purity, in percent.
const (
	PurityUSL = 100.0
	PurityLSL = 97.0
	// CpkTarget is the minimum acceptable capability index.
	CpkTarget = 1.33
	tatBins   = 15
)

// Capability is a Cpk estimate.
type Capability struct {
	N     int     `json:"n"`
	Mean  float64 `json:"mean"`
	Sigma float64 `json:"sigma"`
	// Cpk is +Inf when every sample is identical.
	Cpk float64 `json:"-"`
}

// Sufficient reports whether enough samples exist to estimate Cpk.
func (c Capability) Sufficient() bool { return c.N > 1 }

// Capable reports whether Cpk meets CpkTarget.
func (c Capability) Capable() bool { return c.Sufficient() && c.Cpk >= CpkTarget }

// Status is the headline text shown with the index.
func (c Capability) Status() string {
	switch {
	case !c.Sufficient():
		return "Insufficient data"
	case c.Capable():
		return "Capable"
	default:
		return "Action Required"
	}
}

// String formats the index for display.
func (c Capability) String() string {
	switch {
	case !c.Sufficient():
		return "N/A"
	case math.IsInf(c.Cpk, 1):
		return "∞"
	default:
		return fmt.Sprintf("%.2f", c.Cpk)
	}
}

// MarshalJSON writes an unbounded Cpk as null.
func (c Capability) MarshalJSON() ([]byte, error) {
	type plain Capability
	out := struct {
		plain
		Cpk    *float64 `json:"cpk"`
		Status string   `json:"status"`
	}{plain: plain(c), Status: c.Status()}
	if c.Sufficient() && !math.IsInf(c.Cpk, 0) {
		out.Cpk = &c.Cpk
	}
	return json.Marshal(out)
}

// Cpk estimates process capability against [lsl, usl] using the sample
// standard deviation. Fewer than two samples yield an insufficient result.
func Cpk(values []float64, lsl, usl float64) Capability {
	c := Capability{N: len(values)}
	if c.N < 2 {
		return c
	}
	mean, sigma := meanStd(values)
	c.Mean, c.Sigma = mean, sigma
	if sigma == 0 {
		c.Cpk = math.Inf(1)
		return c
	}
	c.Cpk = math.Min((usl-mean)/(3*sigma), (mean-lsl)/(3*sigma))
	return c
}

func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	ss := 0.0
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// =============================================================================
// Anomaly screen
// =============================================================================

const (
	// MinAnomalySamples is the smallest lot count the screen runs on.
	MinAnomalySamples = 6
	// AnomalyThreshold is the 97.5% quantile of chi-squared with two
	// degrees of freedom; squared distances above it are flagged.
	AnomalyThreshold = 7.378
)

// Anomaly is a lot whose purity/impurity pair sits far from its partner's
// other lots.
type Anomaly struct {
	Lot      *core.Lot `json:"lot"`
	Distance float64   `json:"distance_sq"`
}

// Screen is the result of an anomaly scan.
type Screen struct {
	// Ran is false when there were too few lots or their covariance was
	// singular.
	Ran       bool      `json:"ran"`
	Samples   int       `json:"samples"`
	Anomalies []Anomaly `json:"anomalies"`
}

// ScreenAnomalies flags lots by squared Mahalanobis distance over
// (purity, main impurity). Lots missing either attribute are skipped.
func ScreenAnomalies(lots []*core.Lot) Screen {
	type point struct {
		lot  *core.Lot
		x, y float64
	}
	var pts []point
	for _, l := range lots {
		x, okx := l.Attributes.Value(core.AttrPurity)
		y, oky := l.Attributes.Value(core.AttrMainImpurity)
		if okx && oky {
			pts = append(pts, point{l, x, y})
		}
	}
	sc := Screen{Samples: len(pts)}
	if len(pts) < MinAnomalySamples {
		return sc
	}

	n := float64(len(pts))
	var mx, my float64
	for _, p := range pts {
		mx += p.x
		my += p.y
	}
	mx, my = mx/n, my/n
	var sxx, syy, sxy float64
	for _, p := range pts {
		dx, dy := p.x-mx, p.y-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	sxx, syy, sxy = sxx/(n-1), syy/(n-1), sxy/(n-1)
	det := sxx*syy - sxy*sxy
	if det <= 1e-12 {
		return sc
	}
	sc.Ran = true

	for _, p := range pts {
		dx, dy := p.x-mx, p.y-my
		d2 := (syy*dx*dx - 2*sxy*dx*dy + sxx*dy*dy) / det
		if d2 > AnomalyThreshold {
			sc.Anomalies = append(sc.Anomalies, Anomaly{Lot: p.lot, Distance: d2})
		}
	}
	sort.Slice(sc.Anomalies, func(i, j int) bool { return sc.Anomalies[i].Distance > sc.Anomalies[j].Distance })
	return sc
}

// =============================================================================
// Deep dive
// =============================================================================

// DeepDive is the single-partner scorecard.
type DeepDive struct {
	Partner    core.Partner        `json:"partner"`
	Lots       []*core.Lot         `json:"lots"`
	OnTimeRate float64             `json:"on_time_rate"`
	OOSRate    float64             `json:"oos_rate"`
	OpenCAPAs  int                 `json:"open_capas"`
	Capability Capability          `json:"capability"`
	TAT        []Bin               `json:"tat_histogram"`
	SLADays    int                 `json:"sla_days"`
	Deviations []*core.Deviation   `json:"deviations"`
	Transfers  []core.TechTransfer `json:"transfers"`
	Anomalies  Screen              `json:"anomalies"`
}

// PartnerDeepDive builds the scorecard for the named partner.
func PartnerDeepDive(s *dataset.Snapshot, name string) (*DeepDive, error) {
	p, ok := s.Partner(name)
	if !ok {
		return nil, fmt.Errorf("unknown partner %q", name)
	}
	dd := &DeepDive{
		Partner:    p,
		Lots:       s.FilterLots(dataset.LotFilter{Partner: name}),
		Deviations: FilterDeviations(s, Filter{Partner: name}),
		SLADays:    p.SLADays,
	}
	dd.OnTimeRate = OnTimeRate(dd.Lots)
	dd.OOSRate = OOSRate(dd.Deviations)
	for _, d := range dd.Deviations {
		if d.Status == core.DevCAPAPlan {
			dd.OpenCAPAs++
		}
	}

	var purity, tat []float64
	for _, l := range dd.Lots {
		if v, ok := l.Attributes.Value(core.AttrPurity); ok {
			purity = append(purity, v)
		}
		tat = append(tat, float64(l.ActualTATDays))
	}
	dd.Capability = Cpk(purity, PurityLSL, PurityUSL)
	dd.TAT = Histogram(tat, tatBins)
	if len(dd.Lots) > 0 {
		dd.SLADays = dd.Lots[0].SLADays
	}

	for _, t := range s.Transfers() {
		if t.Partner == name {
			dd.Transfers = append(dd.Transfers, t)
		}
	}
	dd.Anomalies = ScreenAnomalies(dd.Lots)
	return dd, nil
}
