// Package datasettest builds snapshots for tests of the packages that sit
// on top of the dataset.
package datasettest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/synth"
	"github.com/leapstack-labs/qcops/internal/testutil"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Small returns a hand-built snapshot with two DM1 genealogies, one DMD
// genealogy, one orphan DM1 drug product and three deviations.
//
//	DM1-DP-400  released 2023-10-11, purity DS 98.0 -> DP 97.0 (trending low)
//	DM1-DP-401  in testing
//	DMD-DP-402  released 2023-10-20
//	DM1-DP-499  no parents (lineage incomplete)
func Small(t *testing.T) *dataset.Snapshot {
	t.Helper()
	var lots []*core.Lot
	var edges []core.Edge
	for i, p := range []core.Product{core.ProductDM1, core.ProductDM1, core.ProductDMD} {
		l, e := testutil.Genealogy(p, i)
		lots = append(lots, l...)
		edges = append(edges, e...)
	}
	release := func(l *core.Lot, at time.Time) {
		l.Status = core.LotReleased
		l.ReleasedAt = &at
	}
	release(lots[2], time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC))
	release(lots[3], time.Date(2023, 10, 11, 0, 0, 0, 0, time.UTC))
	release(lots[11], time.Date(2023, 10, 20, 0, 0, 0, 0, time.UTC))
	lots[2].Attributes = core.Attributes{Purity: core.Float(98.0), MainImpurity: core.Float(0.8), Aggregate: core.Float(1.5)}
	lots[3].Attributes = core.Attributes{Purity: core.Float(97.0), MainImpurity: core.Float(0.9), Aggregate: core.Float(1.6)}

	orphan := testutil.NewLot("DM1-DP-499", core.StageDrugProduct)
	orphan.Partner = synth.VialFill
	lots = append(lots, orphan)

	devs := []*core.Deviation{
		{ID: "DEV-1", LotID: lots[2].ID, Product: core.ProductDM1, Partner: synth.PharmaMfg, Type: core.DeviationOOS, Status: core.DevInvestigation, AgeDays: 65, RootCause: "Reagent Issue"},
		{ID: "DEV-2", LotID: lots[3].ID, Product: core.ProductDM1, Partner: synth.VialFill, Type: core.DeviationStandard, Status: core.DevClosed, AgeDays: 20, RootCause: "Analyst Error"},
		{ID: "DEV-3", LotID: lots[9].ID, Product: core.ProductDMD, Partner: synth.OligoSynth, Type: core.DeviationOOT, Status: core.DevCAPAPlan, AgeDays: 40, RootCause: "Process Drift"},
	}

	snap, err := dataset.New(dataset.Tables{
		Partners:   synth.Partners(),
		Lots:       lots,
		Edges:      edges,
		Deviations: devs,
		Transfers:  synth.TechTransfers(),
	}, dataset.Meta{
		ID:             "test-snapshot",
		Seed:           1,
		ReferenceDate:  testutil.RefDate,
		BuiltAt:        testutil.RefDate,
		ForecastFactor: 1.0,
	}, dataset.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return snap
}

// Generated returns the default seeded dataset.
func Generated(t *testing.T) *dataset.Snapshot {
	t.Helper()
	snap, err := dataset.Generate(synth.DefaultOptions(), dataset.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return snap
}
