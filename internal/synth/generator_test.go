package synth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/pkg/core"
)

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(DefaultOptions())
	require.NoError(t, err)
	b, err := Generate(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, a, b)

	opts := DefaultOptions()
	opts.Seed = 7
	c, err := Generate(opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Lots, c.Lots)
}

func TestGenerate_Shape(t *testing.T) {
	ds, err := Generate(DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, ds.Partners, 5)
	assert.Len(t, ds.Transfers, 4)
	assert.Len(t, ds.Lots, 4*DefaultLineageGroups)
	assert.Len(t, ds.Edges, 3*DefaultLineageGroups)
	assert.Len(t, ds.Deviations, DefaultDeviations)
	assert.GreaterOrEqual(t, ds.ForecastFactor, 0.8)
	assert.Less(t, ds.ForecastFactor, 1.2)

	assert.Equal(t, "DEV-2023", ds.Deviations[0].ID)
	assert.Equal(t, "DEV-1984", ds.Deviations[DefaultDeviations-1].ID)
}

func TestGenerate_LotInvariants(t *testing.T) {
	ds, err := Generate(DefaultOptions())
	require.NoError(t, err)

	ref := DefaultReferenceDate
	sla := map[string]int{}
	for _, p := range ds.Partners {
		sla[p.Name] = p.SLADays
	}

	ids := map[string]bool{}
	for _, l := range ds.Lots {
		require.NoError(t, l.Validate())
		assert.False(t, ids[l.ID], "duplicate id %s", l.ID)
		ids[l.ID] = true

		assert.True(t, strings.HasPrefix(l.ID, l.Product.Prefix()+"-"), l.ID)
		assert.Equal(t, sla[l.Partner], l.SLADays)

		age := int(ref.Sub(l.CreatedAt).Hours() / 24)
		assert.GreaterOrEqual(t, age, 10, l.ID)
		assert.Less(t, age, 120, l.ID)

		delta := l.ActualTATDays - l.SLADays
		if l.Released() {
			assert.GreaterOrEqual(t, delta, -7)
			assert.Less(t, delta, 3)
			require.NotNil(t, l.ReleasedAt)
			assert.Equal(t, l.CreatedAt.AddDate(0, 0, l.ActualTATDays), *l.ReleasedAt)
		} else {
			assert.GreaterOrEqual(t, delta, -5)
			assert.Less(t, delta, 10)
			assert.Nil(t, l.ReleasedAt)
		}

		for _, attr := range []core.Attribute{core.AttrPurity, core.AttrMainImpurity, core.AttrAggregate} {
			_, ok := l.Attributes.Value(attr)
			assert.True(t, ok, "%s missing %s", l.ID, attr)
		}
	}

	for _, e := range ds.Edges {
		assert.True(t, ids[e.Parent], e.Parent)
		assert.True(t, ids[e.Child], e.Child)
	}
}

func TestGenerate_GroupStructure(t *testing.T) {
	opts := DefaultOptions()
	opts.LineageGroups = 1
	opts.Deviations = 0
	ds, err := Generate(opts)
	require.NoError(t, err)

	require.Len(t, ds.Lots, 4)
	p := ds.Lots[0].Product.Prefix()
	want := []struct {
		id      string
		stage   core.Stage
		partner string
	}{
		{p + "-Antibody-100", core.StageAntibody, PharmaMfg},
		{p + "-Oligo-200", core.StageOligo, OligoSynth},
		{p + "-DS-300", core.StageDrugSubstance, PharmaMfg},
		{p + "-DP-400", core.StageDrugProduct, VialFill},
	}
	for i, w := range want {
		assert.Equal(t, w.id, ds.Lots[i].ID)
		assert.Equal(t, w.stage, ds.Lots[i].Stage)
		assert.Equal(t, w.partner, ds.Lots[i].Partner)
	}
	assert.Equal(t, []core.Edge{
		{Parent: p + "-Antibody-100", Child: p + "-DS-300"},
		{Parent: p + "-Oligo-200", Child: p + "-DS-300"},
		{Parent: p + "-DS-300", Child: p + "-DP-400"},
	}, ds.Edges)
}

func TestGenerate_DeviationsReferenceLots(t *testing.T) {
	ds, err := Generate(DefaultOptions())
	require.NoError(t, err)

	byID := map[string]*core.Lot{}
	for _, l := range ds.Lots {
		byID[l.ID] = l
	}
	for _, d := range ds.Deviations {
		require.NoError(t, d.Validate())
		lot, ok := byID[d.LotID]
		require.True(t, ok, d.LotID)
		assert.Equal(t, lot.Product, d.Product)
		assert.Equal(t, lot.Partner, d.Partner)
		assert.GreaterOrEqual(t, d.AgeDays, 1)
		assert.Less(t, d.AgeDays, 90)
		assert.Contains(t, RootCauses, d.RootCause)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		ok     bool
	}{
		{"defaults", func(*Options) {}, true},
		{"no reference date", func(o *Options) { o.ReferenceDate = time.Time{} }, false},
		{"negative groups", func(o *Options) { o.LineageGroups = -1 }, false},
		{"too many groups", func(o *Options) { o.LineageGroups = 101 }, false},
		{"deviations without lots", func(o *Options) { o.LineageGroups = 0 }, false},
		{"empty dataset", func(o *Options) { o.LineageGroups, o.Deviations = 0, 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if tt.ok {
				assert.NoError(t, o.Validate())
			} else {
				assert.Error(t, o.Validate())
			}
		})
	}
}

func TestPickRespectsWeights(t *testing.T) {
	g, err := Generate(Options{Seed: 1, ReferenceDate: DefaultReferenceDate, LineageGroups: 100})
	require.NoError(t, err)

	released := 0
	for _, l := range g.Lots {
		if l.Released() {
			released++
		}
	}
	// 400 draws at p=0.4; a generous band keeps this stable across seeds.
	assert.InDelta(t, 160, released, 60)
}
