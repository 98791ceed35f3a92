package analytics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/dataset/datasettest"
	"github.com/leapstack-labs/qcops/internal/synth"
	"github.com/leapstack-labs/qcops/internal/testutil"
	"github.com/leapstack-labs/qcops/pkg/core"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func release(l *core.Lot, at time.Time) {
	l.Status = core.LotReleased
	l.ReleasedAt = &at
}

// fixture: two DM1 groups and one DMD group plus a handful of deviations.
func fixture(t *testing.T) *dataset.Snapshot {
	t.Helper()
	var lots []*core.Lot
	var edges []core.Edge
	for i, p := range []core.Product{core.ProductDM1, core.ProductDM1, core.ProductDMD} {
		l, e := testutil.Genealogy(p, i)
		lots = append(lots, l...)
		edges = append(edges, e...)
	}
	// DM1 group 0: DS released Mon 2 Oct, DP released Wed 11 Oct and late.
	release(lots[2], day(2023, 10, 2))
	release(lots[3], day(2023, 10, 11))
	lots[3].ActualTATDays = 35
	// DM1 group 1: DS still testing and past SLA.
	lots[6].ActualTATDays = 25
	lots[6].CreatedAt = day(2023, 9, 1)
	// DMD group: DP released Sun 22 Oct.
	release(lots[11], day(2023, 10, 22))

	devs := []*core.Deviation{
		{ID: "DEV-1", LotID: lots[2].ID, Product: core.ProductDM1, Partner: "Pharma-Mfg", Type: core.DeviationOOS, Status: core.DevInvestigation, AgeDays: 65, RootCause: "Reagent Issue"},
		{ID: "DEV-2", LotID: lots[3].ID, Product: core.ProductDM1, Partner: "VialFill Services", Type: core.DeviationStandard, Status: core.DevClosed, AgeDays: 20, RootCause: "Analyst Error"},
		{ID: "DEV-3", LotID: lots[6].ID, Product: core.ProductDM1, Partner: "Pharma-Mfg", Type: core.DeviationOOS, Status: core.DevCAPAPlan, AgeDays: 40, RootCause: "Reagent Issue"},
		{ID: "DEV-4", LotID: lots[10].ID, Product: core.ProductDMD, Partner: "Pharma-Mfg", Type: core.DeviationOOS, Status: core.DevClosed, AgeDays: 45, RootCause: "Process Drift"},
		{ID: "DEV-5", LotID: lots[9].ID, Product: core.ProductDMD, Partner: "OligoSynth", Type: core.DeviationOOT, Status: core.DevNewEvent, AgeDays: 3, RootCause: "Sample Handling"},
	}
	snap, err := dataset.New(dataset.Tables{
		Partners:   synth.Partners(),
		Lots:       lots,
		Edges:      edges,
		Deviations: devs,
		Transfers:  synth.TechTransfers(),
	}, dataset.Meta{ForecastFactor: 1.0}, dataset.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return snap
}

func TestNetworkKPIs(t *testing.T) {
	got := NetworkKPIs(fixture(t))
	want := KPIs{
		TotalLots:        12,
		PendingLots:      9,
		ReleasedLots:     3,
		AtRiskLots:       1,
		ActiveDeviations: 3,
		OpenCAPAs:        1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NetworkKPIs mismatch (-want +got):\n%s", diff)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		pct  float64
		want Band
	}{
		{100, BandOnTrack},
		{90, BandOnTrack},
		{89.9, BandNeedsImprovement},
		{75, BandNeedsImprovement},
		{74.9, BandAtRisk},
		{0, BandAtRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.pct), "%v", tt.pct)
	}
}

func TestPartnerMatrix(t *testing.T) {
	rows := PartnerMatrix(fixture(t))
	require.Len(t, rows, 5)

	byName := map[string]PartnerPerformance{}
	for _, r := range rows {
		byName[r.Partner.Name] = r
	}

	pm := byName["Pharma-Mfg"]
	assert.Equal(t, 6, pm.Lots) // antibody + DS per group
	assert.InDelta(t, 100*5.0/6.0, pm.OnTimeRate, 1e-9)
	assert.Equal(t, 3, pm.Deviations)
	assert.InDelta(t, 100, pm.OOSRate, 1e-9)
	assert.Equal(t, 3, pm.AgedDeviations)
	assert.Equal(t, BandNeedsImprovement, pm.Band)

	vf := byName["VialFill Services"]
	assert.Equal(t, 3, vf.Lots)
	assert.InDelta(t, 100*2.0/3.0, vf.OnTimeRate, 1e-9)
	assert.Equal(t, BandAtRisk, vf.Band)
	assert.Zero(t, vf.OOSRate)

	bt := byName["BioTest Labs"]
	assert.Zero(t, bt.Lots)
	assert.Equal(t, 100.0, bt.OnTimeRate)
	assert.Equal(t, BandOnTrack, bt.Band)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"monday opens its own week", day(2023, 10, 2), day(2023, 10, 2)},
		{"monday afternoon", day(2023, 10, 9).Add(15 * time.Hour), day(2023, 10, 9)},
		{"sunday closes the week", day(2023, 10, 8).Add(23 * time.Hour), day(2023, 10, 2)},
		{"tuesday", day(2023, 10, 3), day(2023, 10, 2)},
		{"midweek afternoon", day(2023, 10, 11).Add(15 * time.Hour), day(2023, 10, 9)},
		{"offset zone uses the UTC day", time.Date(2023, 10, 9, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)), day(2023, 10, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekStart(tt.at))
		})
	}
}

func TestReleaseVelocity(t *testing.T) {
	v := ReleaseVelocity(fixture(t), 0)
	want := []WeekCount{
		{Week: day(2023, 10, 2), Releases: 1, Forecast: 2},
		{Week: day(2023, 10, 9), Releases: 1, Forecast: 2},
		{Week: day(2023, 10, 16), Releases: 1, Forecast: 2},
	}
	if diff := cmp.Diff(want, v.Weeks); diff != "" {
		t.Errorf("weeks mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 1.0, v.Mean, 1e-9)

	trimmed := ReleaseVelocity(fixture(t), 2)
	require.Len(t, trimmed.Weeks, 2)
	assert.Equal(t, day(2023, 10, 9), trimmed.Weeks[0].Week)
}

func TestReleaseVelocity_FillsGaps(t *testing.T) {
	lots, edges := testutil.Genealogy(core.ProductFSHD, 0)
	release(lots[0], day(2023, 9, 4))
	release(lots[1], day(2023, 9, 5))
	release(lots[2], day(2023, 9, 25))
	snap, err := dataset.New(dataset.Tables{Partners: synth.Partners(), Lots: lots, Edges: edges},
		dataset.Meta{ForecastFactor: 1.1}, dataset.Options{})
	require.NoError(t, err)

	v := ReleaseVelocity(snap, 0)
	require.Len(t, v.Weeks, 4)
	got := make([]int, len(v.Weeks))
	for i, w := range v.Weeks {
		got[i] = w.Releases
	}
	assert.Equal(t, []int{2, 0, 0, 1}, got)
	assert.Equal(t, 3, v.Weeks[0].Forecast) // round(2*1.1 + 1)
	assert.Equal(t, 1, v.Weeks[1].Forecast)
	assert.InDelta(t, 0.75, v.Mean, 1e-9)
}

func TestReleaseVelocity_NoReleases(t *testing.T) {
	lots, edges := testutil.Genealogy(core.ProductFSHD, 0)
	snap, err := dataset.New(dataset.Tables{Partners: synth.Partners(), Lots: lots, Edges: edges}, dataset.Meta{}, dataset.Options{})
	require.NoError(t, err)
	assert.Empty(t, ReleaseVelocity(snap, 12).Weeks)
}

func TestBoard(t *testing.T) {
	cols := Board(fixture(t), Filter{})
	require.Len(t, cols, len(core.DeviationStatuses))
	for i, c := range cols {
		assert.Equal(t, core.DeviationStatuses[i], c.Status)
	}

	counts := map[core.DeviationStatus]int{}
	for _, c := range cols {
		counts[c.Status] = len(c.Cards)
	}
	assert.Equal(t, map[core.DeviationStatus]int{
		core.DevNewEvent:           1,
		core.DevInvestigation:      1,
		core.DevCAPAPlan:           1,
		core.DevEffectivenessCheck: 0,
		core.DevClosed:             2,
	}, counts)

	closed := cols[core.DevClosed.Rank()].Cards
	assert.Equal(t, "DEV-4", closed[0].Deviation.ID, "oldest first")
	assert.Equal(t, SeverityWarning, closed[0].Severity)
	assert.Equal(t, SeverityCritical, cols[core.DevInvestigation.Rank()].Cards[0].Severity)

	dmd := Board(fixture(t), Filter{Product: core.ProductDMD})
	total := 0
	for _, c := range dmd {
		total += len(c.Cards)
	}
	assert.Equal(t, 2, total)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityNormal, SeverityFor(30))
	assert.Equal(t, SeverityWarning, SeverityFor(31))
	assert.Equal(t, SeverityWarning, SeverityFor(60))
	assert.Equal(t, SeverityCritical, SeverityFor(61))
}

func TestOOSPareto(t *testing.T) {
	got := OOSPareto(fixture(t), Filter{})
	want := []CauseCount{
		{RootCause: "Reagent Issue", Count: 2, Cumulative: 100 * 2.0 / 3.0},
		{RootCause: "Process Drift", Count: 1, Cumulative: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pareto mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, OOSPareto(fixture(t), Filter{Partner: "OligoSynth"}))
}

func TestClosureTimes(t *testing.T) {
	c := ClosureTimes(fixture(t), Filter{})
	assert.Equal(t, 2, c.Closed)
	assert.Equal(t, 1, c.WithinTarget)
	assert.InDelta(t, 32.5, c.MeanAgeDays, 1e-9)
	require.Len(t, c.Bins, closureBins)
	assert.Equal(t, 1, c.Bins[0].Count)
	assert.Equal(t, 1, c.Bins[closureBins-1].Count)

	none := ClosureTimes(fixture(t), Filter{Partner: "OligoSynth"})
	assert.Zero(t, none.Closed)
	assert.Nil(t, none.Bins)
}

func TestHistogram(t *testing.T) {
	bins := Histogram([]float64{0, 1, 2, 3, 4, 10}, 5)
	require.Len(t, bins, 5)
	got := make([]int, len(bins))
	for i, b := range bins {
		got[i] = b.Count
	}
	assert.Equal(t, []int{2, 2, 1, 0, 1}, got)
	assert.Equal(t, 10.0, bins[4].Hi)

	same := Histogram([]float64{7, 7, 7}, 3)
	assert.Equal(t, 6.5, same[0].Lo)
	assert.Equal(t, 7.5, same[2].Hi)
	assert.Equal(t, 3, same[1].Count)
	assert.Equal(t, 3, MaxCount(same))

	assert.Nil(t, Histogram(nil, 4))
}

func TestRegulatory(t *testing.T) {
	snap := fixture(t)
	created := testutil.RefDate.AddDate(0, 0, -30)

	sum, err := Regulatory(snap, core.ProductDM1, created, created)
	require.NoError(t, err)
	assert.Len(t, sum.Lots, 7) // lots[6] was moved to September
	assert.Equal(t, 2, sum.Released)
	ids := make([]string, len(sum.Deviations))
	for i, d := range sum.Deviations {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"DEV-1", "DEV-2"}, ids)

	sum, err = Regulatory(snap, core.ProductDM1, day(2023, 9, 1), created.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Len(t, sum.Lots, 8)
	assert.Equal(t, day(2023, 9, 1), sum.Lots[0].CreatedAt)

	sum, err = Regulatory(snap, core.ProductFSHD, created, created)
	require.NoError(t, err)
	assert.Empty(t, sum.Lots)

	_, err = Regulatory(snap, core.ProductDM1, created, created.AddDate(0, 0, -1))
	assert.ErrorContains(t, err, "invalid date range")
}

func TestCreatedRange(t *testing.T) {
	lo, hi := CreatedRange(fixture(t))
	assert.Equal(t, day(2023, 9, 1), lo)
	assert.Equal(t, testutil.RefDate.AddDate(0, 0, -30), hi)
}

func TestCpk(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		status  string
		text    string
		capable bool
	}{
		{"insufficient", []float64{99}, "Insufficient data", "N/A", false},
		{"constant", []float64{99, 99, 99}, "Capable", "∞", true},
		// mean 98.5, sd 0.707
		{"marginal", []float64{98, 99}, "Action Required", "0.71", false},
		// mean 99, sd 0.1, lower side binds
		{"tight", []float64{98.9, 99, 99.1}, "Capable", "3.33", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cpk(tt.values, PurityLSL, PurityUSL)
			assert.Equal(t, tt.status, c.Status())
			assert.Equal(t, tt.text, c.String())
			assert.Equal(t, tt.capable, c.Capable())
		})
	}
}

func TestCapability_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Cpk([]float64{99, 99}, PurityLSL, PurityUSL))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2,"mean":99,"sigma":0,"cpk":null,"status":"Capable"}`, string(b))

	b, err = json.Marshal(Cpk([]float64{98.9, 99, 99.1}, PurityLSL, PurityUSL))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.InDelta(t, 1/0.3, out["cpk"], 1e-6)
}

func TestScreenAnomalies(t *testing.T) {
	mk := func(id string, purity, imp float64) *core.Lot {
		l := testutil.NewLot(id, core.StageDrugSubstance)
		l.Attributes.Purity = core.Float(purity)
		l.Attributes.MainImpurity = core.Float(imp)
		return l
	}

	few := []*core.Lot{mk("a", 99, 1), mk("b", 99.1, 1.1)}
	assert.False(t, ScreenAnomalies(few).Ran)

	var lots []*core.Lot
	for i := range 20 {
		dx := 0.1 * float64(i%5-2)
		dy := 0.05 * float64(i%4-1)
		lots = append(lots, mk("L"+string(rune('a'+i)), 99+dx, 1.2+dy))
	}
	outlier := mk("outlier", 95, 3.5)
	lots = append(lots, outlier)
	// Missing values are skipped.
	lots = append(lots, testutil.NewLot("blank", core.StageDrugSubstance))

	sc := ScreenAnomalies(lots)
	require.True(t, sc.Ran)
	assert.Equal(t, 21, sc.Samples)
	require.NotEmpty(t, sc.Anomalies)
	assert.Same(t, outlier, sc.Anomalies[0].Lot)
	assert.Greater(t, sc.Anomalies[0].Distance, AnomalyThreshold)

	var flat []*core.Lot
	for i := range 8 {
		flat = append(flat, mk("f"+string(rune('a'+i)), 99, 1.2))
	}
	assert.False(t, ScreenAnomalies(flat).Ran, "singular covariance")
}

func TestPartnerDeepDive(t *testing.T) {
	snap := fixture(t)

	dd, err := PartnerDeepDive(snap, "Pharma-Mfg")
	require.NoError(t, err)
	assert.Len(t, dd.Lots, 6)
	assert.Len(t, dd.Deviations, 3)
	assert.Equal(t, 1, dd.OpenCAPAs)
	assert.InDelta(t, 100, dd.OOSRate, 1e-9)
	assert.Equal(t, 21, dd.SLADays)
	require.Len(t, dd.TAT, tatBins)
	total := 0
	for _, b := range dd.TAT {
		total += b.Count
	}
	assert.Equal(t, 6, total)
	// Fixture lots carry no attribute data.
	assert.False(t, dd.Capability.Sufficient())
	assert.Empty(t, dd.Transfers)

	bt, err := PartnerDeepDive(snap, "BioTest Labs")
	require.NoError(t, err)
	assert.Empty(t, bt.Lots)
	assert.Equal(t, 100.0, bt.OnTimeRate)
	assert.Len(t, bt.Transfers, 2)
	assert.Nil(t, bt.TAT)

	_, err = PartnerDeepDive(snap, "Acme")
	assert.ErrorContains(t, err, "unknown partner")
}

func TestPartnerDeepDive_Generated(t *testing.T) {
	snap, err := dataset.Generate(synth.DefaultOptions(), dataset.Options{})
	require.NoError(t, err)
	dd, err := PartnerDeepDive(snap, synth.VialFill)
	require.NoError(t, err)
	assert.Len(t, dd.Lots, synth.DefaultLineageGroups)
	assert.True(t, dd.Capability.Sufficient())
	assert.False(t, math.IsNaN(dd.Capability.Cpk))
	assert.True(t, dd.Anomalies.Ran)
}

func TestParseFilter(t *testing.T) {
	snap := datasettest.Small(t)
	tests := []struct {
		name    string
		in      map[string]string
		want    Filter
		wantErr string
	}{
		{"empty matches all", map[string]string{}, Filter{}, ""},
		{"prefix product", map[string]string{"product": "dmd"}, Filter{Product: core.ProductDMD}, ""},
		{"full filter", map[string]string{"product": "DM1 (AOC-1001)", "partner": "Pharma-Mfg", "type": "OOS"},
			Filter{Product: core.ProductDM1, Partner: "Pharma-Mfg", Type: core.DeviationOOS}, ""},
		{"bad product", map[string]string{"product": "XYZ"}, Filter{}, "XYZ"},
		{"bad partner", map[string]string{"partner": "Acme"}, Filter{}, "unknown partner"},
		{"bad type", map[string]string{"type": "Major"}, Filter{}, "unknown deviation type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(snap, tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
