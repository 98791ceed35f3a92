package dataset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/qcops/internal/synth"
	"github.com/leapstack-labs/qcops/internal/testutil"
	"github.com/leapstack-labs/qcops/pkg/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallTables() Tables {
	lots, edges := testutil.Genealogy(core.ProductDM1, 0)
	return Tables{
		Partners: synth.Partners(),
		Lots:     lots,
		Edges:    edges,
		Deviations: []*core.Deviation{
			{ID: "DEV-1", LotID: "DM1-DS-300", Product: core.ProductDM1, Partner: "Pharma-Mfg", Type: core.DeviationOOS, Status: core.DevInvestigation, AgeDays: 12, RootCause: "Reagent Issue"},
		},
		Transfers: synth.TechTransfers(),
	}
}

func TestNew_Validates(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Tables)
		wantErr string
	}{
		{"valid", func(*Tables) {}, ""},
		{"duplicate lot", func(tb *Tables) {
			tb.Lots = append(tb.Lots, testutil.NewLot("DM1-DS-300", core.StageDrugSubstance))
		}, "duplicate lot id"},
		{"unknown partner", func(tb *Tables) { tb.Lots[0].Partner = "Acme" }, "unknown partner"},
		{"bad lot", func(tb *Tables) { tb.Lots[0].Stage = "Fill" }, "unknown stage"},
		{"deviation on unknown lot", func(tb *Tables) { tb.Deviations[0].LotID = "X-1" }, "unknown lot"},
		{"bad deviation", func(tb *Tables) { tb.Deviations[0].Status = "Escalated" }, "unknown status"},
		{"duplicate partner", func(tb *Tables) { tb.Partners = append(tb.Partners, tb.Partners[0]) }, "duplicate partner"},
		{"transfer to unknown partner", func(tb *Tables) { tb.Transfers[0].Partner = "Nobody" }, "tech transfer"},
		{"cyclic lineage", func(tb *Tables) {
			tb.Edges = append(tb.Edges, core.Edge{Parent: "DM1-DP-400", Child: "DM1-Oligo-200"})
		}, "cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := smallTables()
			tt.mutate(&tb)
			snap, err := New(tb, Meta{}, Options{Logger: testutil.NewTestLogger(t)})
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, snap.Meta().ID)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	tb := smallTables()
	snap, err := New(tb, Meta{}, Options{})
	require.NoError(t, err)

	tb.Lots[0].Status = core.LotReleased
	lot, ok := snap.Lot(tb.Lots[0].ID)
	require.True(t, ok)
	assert.Equal(t, core.LotTesting, lot.Status)
}

func TestSnapshot_Queries(t *testing.T) {
	snap, err := Generate(synth.DefaultOptions(), Options{})
	require.NoError(t, err)

	assert.Len(t, snap.Lots(), 60)
	assert.Len(t, snap.Partners(), 5)
	assert.EqualValues(t, 42, snap.Meta().Seed)

	p, ok := snap.Partner("Gene-Chem")
	require.True(t, ok)
	assert.Equal(t, 14, p.SLADays)
	_, ok = snap.Partner("nope")
	assert.False(t, ok)

	dps := snap.DrugProductLots("")
	require.Len(t, dps, 15)
	for _, dp := range dps {
		chain, err := snap.Resolve(dp.ID)
		require.NoError(t, err)
		rows, err := snap.Cascade(chain.DrugSubstance.ID, chain.DrugProduct.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	}

	open := snap.FilterLots(LotFilter{OpenOnly: true})
	for _, l := range open {
		assert.False(t, l.Released())
	}
	vf := snap.FilterLots(LotFilter{Partner: "VialFill Services"})
	assert.Len(t, vf, 15)

	total := 0
	for _, l := range snap.Lots() {
		total += len(snap.DeviationsForLot(l.ID))
	}
	assert.Equal(t, len(snap.Deviations()), total)
}

func TestSnapshot_ResolveObserver(t *testing.T) {
	var got []string
	snap, err := New(smallTables(), Meta{}, Options{ResolveObserver: func(o string) { got = append(got, o) }})
	require.NoError(t, err)

	_, err = snap.Resolve("DM1-DP-400")
	require.NoError(t, err)
	_, err = snap.Resolve("DM1-DS-300")
	require.ErrorIs(t, err, core.ErrLineageIncomplete)

	assert.Equal(t, []string{"resolved", "incomplete"}, got)
}

func TestProvider_RefreshSwapsAndNotifies(t *testing.T) {
	seed := uint64(1)
	build := func(context.Context) (*Snapshot, error) {
		opts := synth.DefaultOptions()
		opts.Seed = seed
		return Generate(opts, Options{})
	}

	p, err := NewProvider(context.Background(), build, testutil.NewTestLogger(t))
	require.NoError(t, err)
	first := p.Current()

	var notified *Snapshot
	p.OnRefresh(func(s *Snapshot) { notified = s })

	seed = 2
	require.NoError(t, p.Refresh(context.Background()))
	second := p.Current()

	assert.NotSame(t, first, second)
	assert.Same(t, second, notified)
	assert.EqualValues(t, 2, second.Meta().Seed)
	// Readers holding the old pointer keep a consistent view.
	assert.EqualValues(t, 1, first.Meta().Seed)
}

func TestProvider_RefreshFailureKeepsCurrent(t *testing.T) {
	fail := false
	build := func(context.Context) (*Snapshot, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return New(smallTables(), Meta{}, Options{})
	}
	p, err := NewProvider(context.Background(), build, nil)
	require.NoError(t, err)
	before := p.Current()

	fail = true
	assert.Error(t, p.Refresh(context.Background()))
	assert.Same(t, before, p.Current())
}

func TestProvider_InitialBuildError(t *testing.T) {
	_, err := NewProvider(context.Background(), func(context.Context) (*Snapshot, error) {
		return nil, errors.New("boom")
	}, nil)
	assert.ErrorContains(t, err, "initial snapshot")
}

func TestProvider_RunStopsOnCancel(t *testing.T) {
	snap, err := New(smallTables(), Meta{}, Options{})
	require.NoError(t, err)
	p := Static(snap)

	var mu sync.Mutex
	refreshes := 0
	p.OnRefresh(func(*Snapshot) {
		mu.Lock()
		refreshes++
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx, 10*time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, refreshes)
}

func TestProvider_RunWithoutInterval(t *testing.T) {
	p := Static(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx, 0))
}

func TestParseLotFilter(t *testing.T) {
	q := map[string]string{"product": "fshd", "stage": "Drug Substance", "open": "true", "partner": "Gene-Chem"}
	got, err := ParseLotFilter(func(k string) string { return q[k] })
	require.NoError(t, err)
	assert.Equal(t, LotFilter{
		Product:  core.ProductFSHD,
		Stage:    core.StageDrugSubstance,
		Partner:  "Gene-Chem",
		OpenOnly: true,
	}, got)
}
