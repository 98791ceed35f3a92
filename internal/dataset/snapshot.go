// Package dataset holds the in-memory QC dataset as an immutable Snapshot.
//
// A Snapshot is validated once at construction and never mutated; every
// page render, API call and CLI query reads from the same shared pointer.
// A Provider owns the current snapshot and swaps it atomically when the
// data is rebuilt.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/internal/lineage"
	"github.com/leapstack-labs/qcops/internal/synth"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Tables are the raw records a snapshot is built from.
type Tables struct {
	Partners   []core.Partner
	Lots       []*core.Lot
	Edges      []core.Edge
	Deviations []*core.Deviation
	Transfers  []core.TechTransfer
}

// Meta describes where a snapshot came from.
type Meta struct {
	ID             string    `json:"id"`
	Seed           uint64    `json:"seed"`
	ReferenceDate  time.Time `json:"reference_date"`
	BuiltAt        time.Time `json:"built_at"`
	ForecastFactor float64   `json:"forecast_factor"`
}

// Options tune snapshot construction.
type Options struct {
	Logger *slog.Logger
	// ResolveObserver receives one lineage outcome per Resolve call.
	ResolveObserver func(outcome string)
}

// Snapshot is an immutable, validated view of the dataset.
type Snapshot struct {
	meta       Meta
	partners   []core.Partner
	partnerIdx map[string]int
	lots       []*core.Lot
	lotIdx     map[string]*core.Lot
	edges      []core.Edge
	deviations []*core.Deviation
	devsByLot  map[string][]*core.Deviation
	transfers  []core.TechTransfer

	index    *lineage.Index
	resolver *lineage.Resolver
	cqa      *cqa.Evaluator
}

// New validates t and builds a snapshot. Lots and deviations are copied so
// later changes to the input cannot leak in.
func New(t Tables, meta Meta, opts Options) (*Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = time.Now().UTC()
	}

	s := &Snapshot{
		meta:       meta,
		partnerIdx: make(map[string]int, len(t.Partners)),
		lotIdx:     make(map[string]*core.Lot, len(t.Lots)),
		devsByLot:  make(map[string][]*core.Deviation),
		edges:      append([]core.Edge(nil), t.Edges...),
		transfers:  append([]core.TechTransfer(nil), t.Transfers...),
	}

	for i := range t.Partners {
		p := t.Partners[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid partner: %w", err)
		}
		if _, dup := s.partnerIdx[p.Name]; dup {
			return nil, fmt.Errorf("duplicate partner %q", p.Name)
		}
		s.partnerIdx[p.Name] = len(s.partners)
		s.partners = append(s.partners, p)
	}

	for _, in := range t.Lots {
		if in == nil {
			continue
		}
		lot := *in
		if err := lot.Validate(); err != nil {
			return nil, fmt.Errorf("invalid lot: %w", err)
		}
		if _, dup := s.lotIdx[lot.ID]; dup {
			return nil, fmt.Errorf("duplicate lot id %q", lot.ID)
		}
		if _, ok := s.partnerIdx[lot.Partner]; !ok {
			return nil, fmt.Errorf("lot %s: unknown partner %q", lot.ID, lot.Partner)
		}
		s.lotIdx[lot.ID] = &lot
		s.lots = append(s.lots, &lot)
	}

	for _, in := range t.Deviations {
		if in == nil {
			continue
		}
		dev := *in
		if err := dev.Validate(); err != nil {
			return nil, fmt.Errorf("invalid deviation: %w", err)
		}
		if _, ok := s.lotIdx[dev.LotID]; !ok {
			return nil, fmt.Errorf("deviation %s: unknown lot %q", dev.ID, dev.LotID)
		}
		s.deviations = append(s.deviations, &dev)
		s.devsByLot[dev.LotID] = append(s.devsByLot[dev.LotID], &dev)
	}

	for _, tt := range s.transfers {
		if _, ok := s.partnerIdx[tt.Partner]; !ok {
			return nil, fmt.Errorf("tech transfer %q: unknown partner %q", tt.Method, tt.Partner)
		}
	}

	idx, err := lineage.NewIndex(s.lots, s.edges, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build lineage index: %w", err)
	}
	s.index = idx
	var ropts []lineage.ResolverOption
	if opts.ResolveObserver != nil {
		ropts = append(ropts, lineage.WithObserver(opts.ResolveObserver))
	}
	s.resolver = lineage.NewResolver(idx, ropts...)
	s.cqa = cqa.NewEvaluator(s)

	logger.Info("dataset snapshot built",
		"id", meta.ID,
		"lots", len(s.lots),
		"deviations", len(s.deviations),
		"rejected_edges", len(idx.Rejected()))

	return s, nil
}

// FromSynth wraps a generated dataset.
func FromSynth(d *synth.Dataset, opts Options) (*Snapshot, error) {
	return New(Tables{
		Partners:   d.Partners,
		Lots:       d.Lots,
		Edges:      d.Edges,
		Deviations: d.Deviations,
		Transfers:  d.Transfers,
	}, Meta{
		Seed:           d.Options.Seed,
		ReferenceDate:  d.Options.ReferenceDate,
		ForecastFactor: d.ForecastFactor,
	}, opts)
}

// Generate runs the generator and wraps the result.
func Generate(gen synth.Options, opts Options) (*Snapshot, error) {
	d, err := synth.Generate(gen)
	if err != nil {
		return nil, err
	}
	return FromSynth(d, opts)
}

// Meta returns provenance information.
func (s *Snapshot) Meta() Meta { return s.meta }

// Partners returns all partners in catalogue order.
func (s *Snapshot) Partners() []core.Partner { return s.partners }

// Partner looks a partner up by name.
func (s *Snapshot) Partner(name string) (core.Partner, bool) {
	i, ok := s.partnerIdx[name]
	if !ok {
		return core.Partner{}, false
	}
	return s.partners[i], true
}

// Lots returns all lots in generation order.
func (s *Snapshot) Lots() []*core.Lot { return s.lots }

// Lot looks a lot up by id.
func (s *Snapshot) Lot(id string) (*core.Lot, bool) {
	l, ok := s.lotIdx[id]
	return l, ok
}

// Edges returns the lineage edges as supplied.
func (s *Snapshot) Edges() []core.Edge { return s.edges }

// Deviations returns all deviations in generation order.
func (s *Snapshot) Deviations() []*core.Deviation { return s.deviations }

// DeviationsForLot returns the deviations raised against lotID.
func (s *Snapshot) DeviationsForLot(lotID string) []*core.Deviation { return s.devsByLot[lotID] }

// Transfers returns the method transfers.
func (s *Snapshot) Transfers() []core.TechTransfer { return s.transfers }

// Index returns the lineage index.
func (s *Snapshot) Index() *lineage.Index { return s.index }

// Resolve traces a Drug Product lot to its raw materials.
func (s *Snapshot) Resolve(dpLotID string) (*core.Chain, error) {
	return s.resolver.Resolve(dpLotID)
}

// Cascade compares the CQA results of a DS/DP lot pair.
func (s *Snapshot) Cascade(dsLotID, dpLotID string) ([]cqa.Row, error) {
	return s.cqa.Cascade(dsLotID, dpLotID)
}

// LotFilter selects lots. Zero fields match everything.
type LotFilter struct {
	Product core.Product
	Stage   core.Stage
	Partner string
	Status  core.LotStatus
	// OpenOnly keeps lots that are not yet released.
	OpenOnly bool
}

// ParseLotFilter reads the product, stage, partner, status and open
// selections through get, which returns "" for unset keys.
func ParseLotFilter(get func(string) string) (LotFilter, error) {
	var f LotFilter
	if s := get("product"); s != "" {
		p, err := core.ParseProduct(s)
		if err != nil {
			return f, err
		}
		f.Product = p
	}
	if s := get("stage"); s != "" {
		st, err := core.ParseStage(s)
		if err != nil {
			return f, err
		}
		f.Stage = st
	}
	if s := get("status"); s != "" {
		st := core.LotStatus(s)
		if !st.Valid() {
			return f, errors.New("unknown lot status " + strconv.Quote(s))
		}
		f.Status = st
	}
	if s := get("open"); s != "" {
		open, err := strconv.ParseBool(s)
		if err != nil {
			return f, errors.New("open must be true or false")
		}
		f.OpenOnly = open
	}
	f.Partner = get("partner")
	return f, nil
}

// FilterLots returns the lots matching f, sorted by id.
func (s *Snapshot) FilterLots(f LotFilter) []*core.Lot {
	var out []*core.Lot
	for _, l := range s.lots {
		switch {
		case f.Product != "" && l.Product != f.Product,
			f.Stage != "" && l.Stage != f.Stage,
			f.Partner != "" && l.Partner != f.Partner,
			f.Status != "" && l.Status != f.Status,
			f.OpenOnly && l.Released():
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DrugProductLots returns Drug Product lots for product (all products when
// empty), sorted by id.
func (s *Snapshot) DrugProductLots(product core.Product) []*core.Lot {
	return s.FilterLots(LotFilter{Product: product, Stage: core.StageDrugProduct})
}
