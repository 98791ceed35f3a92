package cqa

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/testutil"
	"github.com/leapstack-labs/qcops/pkg/core"
)

type lotMap map[string]*core.Lot

func (m lotMap) Lot(id string) (*core.Lot, bool) {
	l, ok := m[id]
	return l, ok
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		drift  Drift
		ds, dp float64
		want   Trend
	}{
		{"purity drop beyond threshold", DriftDown, 98.0, 97.0, TrendingLow},
		{"purity small rise", DriftDown, 98.0, 98.1, InTrend},
		{"purity drop at boundary", DriftDown, 98.0, 98.0 - DriftThreshold, InTrend},
		{"aggregate rise beyond threshold", DriftUp, 1.5, 2.0, TrendingHigh},
		{"aggregate rise at boundary", DriftUp, 1.5, 1.5 + DriftThreshold, InTrend},
		{"aggregate falls", DriftUp, 1.5, 0.9, InTrend},
		{"aggregate two-decimal boundary", DriftUp, 0.7, 0.9, InTrend},
		{"aggregate two-decimal boundary off grid", DriftUp, 0.47, 0.67, InTrend},
		{"aggregate one hundredth past boundary", DriftUp, 0.47, 0.68, TrendingHigh},
		{"purity two-decimal boundary", DriftDown, 0.9, 0.7, InTrend},
		{"purity one hundredth past boundary", DriftDown, 96.43, 96.22, TrendingLow},
		{"impurity never flagged", DriftNone, 0.5, 5.0, InTrend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.drift, tt.ds, tt.dp))
		})
	}
}

func TestClassify_TwoDecimalBoundaries(t *testing.T) {
	// Every reported result sits on a hundredths grid; a move of exactly
	// 0.20 in either direction must stay in trend.
	for i := 0; i <= 10000; i++ {
		ds := float64(i) / 100
		up, _ := strconv.ParseFloat(strconv.FormatFloat(ds+0.2, 'f', 2, 64), 64)
		down, _ := strconv.ParseFloat(strconv.FormatFloat(ds-0.2, 'f', 2, 64), 64)
		if got := Classify(DriftUp, ds, up); got != InTrend {
			t.Fatalf("Classify(DriftUp, %.2f, %.2f) = %q, want %q", ds, up, got, InTrend)
		}
		if got := Classify(DriftDown, ds, down); got != InTrend {
			t.Fatalf("Classify(DriftDown, %.2f, %.2f) = %q, want %q", ds, down, got, InTrend)
		}
	}
}

func TestCompare(t *testing.T) {
	ds := testutil.NewLot("DM1-DS-300", core.StageDrugSubstance)
	ds.Attributes = core.Attributes{Purity: core.Float(98.0), MainImpurity: core.Float(1.1), Aggregate: core.Float(1.5)}
	dp := testutil.NewLot("DM1-DP-400", core.StageDrugProduct)
	dp.Attributes = core.Attributes{Purity: core.Float(97.0), MainImpurity: core.Float(1.6), Aggregate: core.Float(2.0)}

	yes, no := true, false
	want := []Row{
		{
			Attribute: "Purity by RP-HPLC (%)", DSSpec: "≥ 97.0", DPSpec: "≥ 97.0",
			DSResult: core.Float(98.0), DPResult: core.Float(97.0), Trend: TrendingLow,
			DSConforms: &yes, DPConforms: &yes,
		},
		{
			Attribute: "Aggregate Content (%)", DSSpec: "≤ 2.0", DPSpec: "≤ 2.5",
			DSResult: core.Float(1.5), DPResult: core.Float(2.0), Trend: TrendingHigh,
			DSConforms: &yes, DPConforms: &yes,
		},
		{
			Attribute: "Main Impurity Peak (%)", DSSpec: "Report", DPSpec: "≤ 1.5",
			DSResult: core.Float(1.1), DPResult: core.Float(1.6), Trend: InTrend,
			DPConforms: &no,
		},
	}

	if diff := cmp.Diff(want, Compare(ds, dp)); diff != "" {
		t.Errorf("Compare() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_MissingValueIsNotApplicable(t *testing.T) {
	ds := testutil.NewLot("DS", core.StageDrugSubstance)
	ds.Attributes = core.Attributes{Purity: core.Float(99.0)}
	dp := testutil.NewLot("DP", core.StageDrugProduct)
	dp.Attributes = core.Attributes{Aggregate: core.Float(1.0)}

	rows := Compare(ds, dp)
	require.Len(t, rows, len(Specs))
	for _, r := range rows {
		assert.Equal(t, NotApplicable, r.Trend, r.Attribute)
	}
	assert.NotNil(t, rows[0].DSResult)
	assert.Nil(t, rows[0].DPResult)
	assert.Nil(t, rows[1].DSResult)
	assert.NotNil(t, rows[1].DPResult)
}

func TestCompare_PreservesAttributeOrder(t *testing.T) {
	rows := Compare(testutil.NewLot("a", core.StageDrugSubstance), testutil.NewLot("b", core.StageDrugProduct))
	var names []string
	for _, r := range rows {
		names = append(names, r.Attribute)
	}
	assert.Equal(t, []string{"Purity by RP-HPLC (%)", "Aggregate Content (%)", "Main Impurity Peak (%)"}, names)
}

func TestEvaluator_Cascade(t *testing.T) {
	lots, _ := testutil.Genealogy(core.ProductDMD, 1)
	src := lotMap{}
	for _, l := range lots {
		l.Attributes = core.Attributes{Purity: core.Float(99), MainImpurity: core.Float(1), Aggregate: core.Float(1.4)}
		src[l.ID] = l
	}
	e := NewEvaluator(src)

	rows, err := e.Cascade("DMD-DS-301", "DMD-DP-401")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Empty(t, Flagged(rows))

	_, err = e.Cascade("DMD-DS-301", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingAttribute))
	var mae *core.MissingAttributeError
	require.True(t, errors.As(err, &mae))
	assert.Equal(t, "nope", mae.LotID)

	_, err = e.Cascade("nope", "DMD-DP-401")
	assert.ErrorIs(t, err, core.ErrMissingAttribute)
}

func TestEvaluator_ForChain(t *testing.T) {
	lots, _ := testutil.Genealogy(core.ProductDM1, 0)
	src := lotMap{}
	for _, l := range lots {
		src[l.ID] = l
	}
	lots[2].Attributes.Aggregate = core.Float(1.0)
	lots[3].Attributes.Aggregate = core.Float(1.9)

	rows, err := NewEvaluator(src).ForChain(&core.Chain{
		Antibody: lots[0], Oligo: lots[1], DrugSubstance: lots[2], DrugProduct: lots[3],
	})
	require.NoError(t, err)
	flagged := Flagged(rows)
	require.Len(t, flagged, 1)
	assert.Equal(t, TrendingHigh, flagged[0].Trend)

	_, err = NewEvaluator(src).ForChain(nil)
	assert.Error(t, err)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, "≥ 97.0", Limit{Kind: AtLeast, Value: 97}.String())
	assert.True(t, Limit{Kind: AtLeast, Value: 97}.Conforms(97))
	assert.False(t, Limit{Kind: AtMost, Value: 1.5}.Conforms(1.51))
	assert.True(t, Limit{}.Conforms(1e9))
}
