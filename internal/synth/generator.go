// Package synth fabricates the demonstration dataset: partners, lots and
// their genealogy, deviations and method transfers. Output is a pure
// function of Options; the same seed and reference date always produce the
// same tables.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/leapstack-labs/qcops/pkg/core"
)

// Defaults.
const (
	DefaultSeed          = 42
	DefaultLineageGroups = 15
	DefaultDeviations    = 40
)

// DefaultReferenceDate is the "today" the demo data is generated against.
var DefaultReferenceDate = time.Date(2023, time.October, 27, 0, 0, 0, 0, time.UTC)

// Options controls generation.
type Options struct {
	Seed          uint64
	ReferenceDate time.Time
	LineageGroups int
	Deviations    int
}

// DefaultOptions returns the canonical demo options.
func DefaultOptions() Options {
	return Options{
		Seed:          DefaultSeed,
		ReferenceDate: DefaultReferenceDate,
		LineageGroups: DefaultLineageGroups,
		Deviations:    DefaultDeviations,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.ReferenceDate.IsZero() {
		return fmt.Errorf("reference date is required")
	}
	if o.LineageGroups < 0 || o.LineageGroups > 100 {
		return fmt.Errorf("lineage groups must be between 0 and 100, got %d", o.LineageGroups)
	}
	if o.Deviations < 0 {
		return fmt.Errorf("deviations must not be negative, got %d", o.Deviations)
	}
	if o.Deviations > 0 && o.LineageGroups == 0 {
		return fmt.Errorf("deviations need at least one lineage group to reference")
	}
	return nil
}

// Dataset is the generated raw tables.
type Dataset struct {
	Options        Options
	Partners       []core.Partner
	Lots           []*core.Lot
	Edges          []core.Edge
	Deviations     []*core.Deviation
	Transfers      []core.TechTransfer
	ForecastFactor float64
}

// Generate produces a dataset from opts.
func Generate(opts Options) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator options: %w", err)
	}

	g := &generator{
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		ref:      opts.ReferenceDate.UTC().Truncate(24 * time.Hour),
		partners: Partners(),
	}
	g.sla = make(map[string]int, len(g.partners))
	for _, p := range g.partners {
		g.sla[p.Name] = p.SLADays
	}

	ds := &Dataset{
		Options:   opts,
		Partners:  g.partners,
		Transfers: TechTransfers(),
	}
	for i := 0; i < opts.LineageGroups; i++ {
		lots, edges := g.lineageGroup(i)
		ds.Lots = append(ds.Lots, lots...)
		ds.Edges = append(ds.Edges, edges...)
	}
	for i := 0; i < opts.Deviations; i++ {
		ds.Deviations = append(ds.Deviations, g.deviation(i, ds.Lots))
	}
	ds.ForecastFactor = 0.8 + 0.4*g.rng.Float64()

	return ds, nil
}

type generator struct {
	rng      *rand.Rand
	ref      time.Time
	partners []core.Partner
	sla      map[string]int
}

func (g *generator) lineageGroup(i int) ([]*core.Lot, []core.Edge) {
	product := core.Products[g.rng.IntN(len(core.Products))]
	p := product.Prefix()

	ab := g.lot(fmt.Sprintf("%s-Antibody-%d", p, 100+i), product, core.StageAntibody, PharmaMfg)
	ol := g.lot(fmt.Sprintf("%s-Oligo-%d", p, 200+i), product, core.StageOligo, OligoSynth)
	ds := g.lot(fmt.Sprintf("%s-DS-%d", p, 300+i), product, core.StageDrugSubstance, PharmaMfg)
	dp := g.lot(fmt.Sprintf("%s-DP-%d", p, 400+i), product, core.StageDrugProduct, VialFill)

	return []*core.Lot{ab, ol, ds, dp}, []core.Edge{
		{Parent: ab.ID, Child: ds.ID},
		{Parent: ol.ID, Child: ds.ID},
		{Parent: ds.ID, Child: dp.ID},
	}
}

func (g *generator) lot(id string, product core.Product, stage core.Stage, partner string) *core.Lot {
	status := pick(g.rng, lotStatusWeights)
	sla := g.sla[partner]
	created := g.ref.AddDate(0, 0, -g.between(10, 120))

	var tat int
	if status == core.LotReleased {
		tat = sla + g.between(-7, 3)
	} else {
		tat = sla + g.between(-5, 10)
	}

	lot := &core.Lot{
		ID:            id,
		Product:       product,
		Stage:         stage,
		Partner:       partner,
		Status:        status,
		CreatedAt:     created,
		SLADays:       sla,
		ActualTATDays: tat,
		Attributes: core.Attributes{
			Purity:       g.sample(purityDist),
			MainImpurity: g.sample(mainImpurityDist),
			Aggregate:    g.sample(aggregateDist),
		},
	}
	if status == core.LotReleased {
		released := created.AddDate(0, 0, tat)
		lot.ReleasedAt = &released
	}
	return lot
}

func (g *generator) deviation(i int, lots []*core.Lot) *core.Deviation {
	lot := lots[g.rng.IntN(len(lots))]
	return &core.Deviation{
		ID:        fmt.Sprintf("DEV-%d", 2023-i),
		LotID:     lot.ID,
		Product:   lot.Product,
		Partner:   lot.Partner,
		Type:      pick(g.rng, deviationTypeWeights),
		Status:    pick(g.rng, deviationStatusWeights),
		AgeDays:   g.between(1, 90),
		RootCause: RootCauses[g.rng.IntN(len(RootCauses))],
	}
}

// between returns an int in [lo, hi).
func (g *generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo)
}

func (g *generator) sample(n normal) *float64 {
	v := n.mean + n.sd*g.rng.NormFloat64()
	v = math.Round(v*100) / 100
	return &v
}

type weighted[T any] struct {
	value  T
	weight float64
}

func pick[T any](rng *rand.Rand, choices []weighted[T]) T {
	var total float64
	for _, c := range choices {
		total += c.weight
	}
	r := rng.Float64() * total
	for _, c := range choices {
		if r < c.weight {
			return c.value
		}
		r -= c.weight
	}
	return choices[len(choices)-1].value
}
