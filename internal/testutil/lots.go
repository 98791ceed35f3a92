package testutil

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/qcops/pkg/core"
)

// RefDate is the fixed "today" used by fixtures.
var RefDate = time.Date(2023, 10, 27, 0, 0, 0, 0, time.UTC)

// NewLot returns a valid in-testing lot for the DM1 program.
// Callers mutate the returned value for the case at hand.
func NewLot(id string, stage core.Stage) *core.Lot {
	return &core.Lot{
		ID:            id,
		Product:       core.ProductDM1,
		Stage:         stage,
		Partner:       "Pharma-Mfg",
		Status:        core.LotTesting,
		CreatedAt:     RefDate.AddDate(0, 0, -30),
		SLADays:       21,
		ActualTATDays: 20,
	}
}

// Genealogy builds one antibody + oligo -> DS -> DP group numbered like the
// generator does: Antibody-1xx, Oligo-2xx, DS-3xx, DP-4xx.
func Genealogy(product core.Product, i int) ([]*core.Lot, []core.Edge) {
	p := product.Prefix()
	ab := NewLot(fmt.Sprintf("%s-Antibody-%d", p, 100+i), core.StageAntibody)
	ol := NewLot(fmt.Sprintf("%s-Oligo-%d", p, 200+i), core.StageOligo)
	ol.Partner = "OligoSynth"
	ds := NewLot(fmt.Sprintf("%s-DS-%d", p, 300+i), core.StageDrugSubstance)
	dp := NewLot(fmt.Sprintf("%s-DP-%d", p, 400+i), core.StageDrugProduct)
	dp.Partner = "VialFill Services"
	dp.SLADays = 28

	lots := []*core.Lot{ab, ol, ds, dp}
	for _, l := range lots {
		l.Product = product
	}
	edges := []core.Edge{
		{Parent: ab.ID, Child: ds.ID},
		{Parent: ol.ID, Child: ds.ID},
		{Parent: ds.ID, Child: dp.ID},
	}
	return lots, edges
}
