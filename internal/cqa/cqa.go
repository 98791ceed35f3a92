// Package cqa compares critical quality attributes across the Drug
// Substance to Drug Product step.
//
// The trend call is a fixed two-point drift heuristic: it looks at one DS
// result and one DP result and flags a move of more than DriftThreshold in
// the unfavourable direction. It is not a statistical test and says nothing
// about process capability.
package cqa

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/qcops/pkg/core"
)

// DriftThreshold is the DS to DP movement, in percentage points, that
// triggers a trend flag.
const DriftThreshold = 0.2

// Trend is the drift classification of one attribute.
type Trend string

// Trend values.
const (
	InTrend       Trend = "In Trend"
	TrendingHigh  Trend = "Trending High"
	TrendingLow   Trend = "Trending Low"
	NotApplicable Trend = "Not Applicable"
)

// Drift selects which direction of movement is unfavourable for an attribute.
type Drift int

// Drift directions.
const (
	DriftNone Drift = iota // never flagged
	DriftUp                // flag DP > DS + threshold
	DriftDown              // flag DP < DS - threshold
)

// LimitKind is the shape of a specification limit.
type LimitKind int

// Limit kinds.
const (
	ReportOnly LimitKind = iota
	AtLeast
	AtMost
)

// Limit is a one-sided acceptance criterion.
type Limit struct {
	Kind  LimitKind
	Value float64
}

func (l Limit) String() string {
	switch l.Kind {
	case AtLeast:
		return fmt.Sprintf("≥ %.1f", l.Value)
	case AtMost:
		return fmt.Sprintf("≤ %.1f", l.Value)
	default:
		return "Report"
	}
}

// Conforms reports whether v meets the limit. Report-only limits always conform.
func (l Limit) Conforms(v float64) bool {
	switch l.Kind {
	case AtLeast:
		return v >= l.Value
	case AtMost:
		return v <= l.Value
	default:
		return true
	}
}

// Spec describes how one attribute is compared.
type Spec struct {
	Attribute core.Attribute
	Name      string
	DS        Limit
	DP        Limit
	Drift     Drift
}

// Specs is the fixed, ordered attribute list of the cascade.
var Specs = []Spec{
	{
		Attribute: core.AttrPurity,
		Name:      "Purity by RP-HPLC (%)",
		DS:        Limit{Kind: AtLeast, Value: 97.0},
		DP:        Limit{Kind: AtLeast, Value: 97.0},
		Drift:     DriftDown,
	},
	{
		Attribute: core.AttrAggregate,
		Name:      "Aggregate Content (%)",
		DS:        Limit{Kind: AtMost, Value: 2.0},
		DP:        Limit{Kind: AtMost, Value: 2.5},
		Drift:     DriftUp,
	},
	{
		Attribute: core.AttrMainImpurity,
		Name:      "Main Impurity Peak (%)",
		DS:        Limit{Kind: ReportOnly},
		DP:        Limit{Kind: AtMost, Value: 1.5},
		Drift:     DriftNone,
	},
}

// Row is one line of the cascade table. A nil result means the attribute
// was not measured on that lot.
type Row struct {
	Attribute  string   `json:"attribute"`
	DSSpec     string   `json:"ds_spec"`
	DPSpec     string   `json:"dp_spec"`
	DSResult   *float64 `json:"ds_result"`
	DPResult   *float64 `json:"dp_result"`
	Trend      Trend    `json:"trend"`
	DSConforms *bool    `json:"ds_conforms,omitempty"`
	DPConforms *bool    `json:"dp_conforms,omitempty"`
}

// driftScale is the grid, per percentage point, that drift is rounded to
// before comparing, so 0.9-0.7 equals DriftThreshold.
const driftScale = 1e6

// Classify applies the drift rule to a pair of results.
// Comparisons are strict: a move of exactly DriftThreshold is in trend.
func Classify(d Drift, ds, dp float64) Trend {
	move := math.Round((dp - ds) * driftScale)
	limit := math.Round(DriftThreshold * driftScale)
	switch d {
	case DriftUp:
		if move > limit {
			return TrendingHigh
		}
	case DriftDown:
		if move < -limit {
			return TrendingLow
		}
	}
	return InTrend
}

// Compare builds the cascade rows for a DS/DP lot pair.
func Compare(ds, dp *core.Lot) []Row {
	rows := make([]Row, 0, len(Specs))
	for _, spec := range Specs {
		row := Row{
			Attribute: spec.Name,
			DSSpec:    spec.DS.String(),
			DPSpec:    spec.DP.String(),
			Trend:     NotApplicable,
		}
		dsv, dsOK := ds.Attributes.Value(spec.Attribute)
		dpv, dpOK := dp.Attributes.Value(spec.Attribute)
		if dsOK {
			row.DSResult = &dsv
			row.DSConforms = conforms(spec.DS, dsv)
		}
		if dpOK {
			row.DPResult = &dpv
			row.DPConforms = conforms(spec.DP, dpv)
		}
		if dsOK && dpOK {
			row.Trend = Classify(spec.Drift, dsv, dpv)
		}
		rows = append(rows, row)
	}
	return rows
}

func conforms(l Limit, v float64) *bool {
	if l.Kind == ReportOnly {
		return nil
	}
	ok := l.Conforms(v)
	return &ok
}

// LotSource looks lots up by id.
type LotSource interface {
	Lot(id string) (*core.Lot, bool)
}

// Evaluator runs cascades against a lot source.
type Evaluator struct {
	lots LotSource
}

// NewEvaluator creates an evaluator reading from lots.
func NewEvaluator(lots LotSource) *Evaluator {
	return &Evaluator{lots: lots}
}

// Cascade compares the DS and DP lots identified by id.
// An unknown id yields *core.MissingAttributeError.
func (e *Evaluator) Cascade(dsLotID, dpLotID string) ([]Row, error) {
	ds, ok := e.lots.Lot(dsLotID)
	if !ok {
		return nil, &core.MissingAttributeError{LotID: dsLotID}
	}
	dp, ok := e.lots.Lot(dpLotID)
	if !ok {
		return nil, &core.MissingAttributeError{LotID: dpLotID}
	}
	return Compare(ds, dp), nil
}

// ForChain runs the cascade for a resolved genealogy.
func (e *Evaluator) ForChain(chain *core.Chain) ([]Row, error) {
	if chain == nil || chain.DrugSubstance == nil || chain.DrugProduct == nil {
		return nil, fmt.Errorf("chain is missing its drug substance or drug product lot")
	}
	return e.Cascade(chain.DrugSubstance.ID, chain.DrugProduct.ID)
}

// Flagged returns the rows whose trend is not InTrend or NotApplicable.
func Flagged(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.Trend == TrendingHigh || r.Trend == TrendingLow {
			out = append(out, r)
		}
	}
	return out
}
