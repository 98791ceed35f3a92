package lineage

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/qcops/pkg/core"
)

// Outcome labels reported to a resolver observer.
const (
	OutcomeResolved   = "resolved"
	OutcomeIncomplete = "incomplete"
)

// Resolver traces Drug Product lots back to their raw materials.
type Resolver struct {
	index   *Index
	observe func(outcome string)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithObserver registers a callback invoked once per Resolve call with
// OutcomeResolved or OutcomeIncomplete.
func WithObserver(fn func(outcome string)) ResolverOption {
	return func(r *Resolver) {
		r.observe = fn
	}
}

// NewResolver creates a resolver over idx.
func NewResolver(idx *Index, opts ...ResolverOption) *Resolver {
	r := &Resolver{index: idx, observe: func(string) {}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the antibody, oligo, DS and DP lots for dpLotID.
// Any structural mismatch yields *core.LineageIncompleteError.
func (r *Resolver) Resolve(dpLotID string) (*core.Chain, error) {
	chain, err := r.resolve(dpLotID)
	if err != nil {
		r.observe(OutcomeIncomplete)
		return nil, err
	}
	r.observe(OutcomeResolved)
	return chain, nil
}

func (r *Resolver) resolve(dpLotID string) (*core.Chain, error) {
	if r.index == nil || r.index.Len() == 0 {
		return nil, incomplete(dpLotID, "no lots loaded")
	}

	dp, ok := r.index.Lot(dpLotID)
	if !ok {
		return nil, incomplete(dpLotID, "lot not found")
	}
	if dp.Stage != core.StageDrugProduct {
		return nil, incomplete(dpLotID, fmt.Sprintf("lot is %s, not %s", dp.Stage, core.StageDrugProduct))
	}

	dpParents := r.index.Parents(dpLotID)
	if len(dpParents) != 1 {
		return nil, incomplete(dpLotID, fmt.Sprintf("expected 1 drug substance parent, found %d", len(dpParents)))
	}
	ds := dpParents[0]
	if ds.Stage != core.StageDrugSubstance {
		return nil, incomplete(dpLotID, fmt.Sprintf("parent %s is %s, not %s", ds.ID, ds.Stage, core.StageDrugSubstance))
	}

	dsParents := r.index.Parents(ds.ID)
	if len(dsParents) != 2 {
		return nil, incomplete(dpLotID, fmt.Sprintf("drug substance %s has %d parents, expected 2", ds.ID, len(dsParents)))
	}

	chain := &core.Chain{DrugSubstance: ds, DrugProduct: dp}
	for _, p := range dsParents {
		switch classify(p) {
		case roleAntibody:
			if chain.Antibody != nil {
				return nil, incomplete(dpLotID, fmt.Sprintf("drug substance %s has two antibody-origin parents", ds.ID))
			}
			chain.Antibody = p
		case roleOligo:
			if chain.Oligo != nil {
				return nil, incomplete(dpLotID, fmt.Sprintf("drug substance %s has two oligo-origin parents", ds.ID))
			}
			chain.Oligo = p
		default:
			return nil, incomplete(dpLotID, fmt.Sprintf("parent %s of %s is neither antibody nor oligo origin", p.ID, ds.ID))
		}
	}
	return chain, nil
}

func incomplete(lotID, reason string) error {
	return &core.LineageIncompleteError{LotID: lotID, Reason: reason}
}

type role int

const (
	roleUnknown role = iota
	roleAntibody
	roleOligo
)

// classify assigns a raw-material role by stage. Only lots outside the
// supply-chain stages fall back to the naming convention
// ("...-Antibody-...", "...-Oligo-...").
func classify(lot *core.Lot) role {
	switch lot.Stage {
	case core.StageAntibody:
		return roleAntibody
	case core.StageOligo:
		return roleOligo
	case core.StageDrugSubstance, core.StageDrugProduct:
		return roleUnknown
	}
	switch {
	case strings.Contains(lot.ID, "Antibody"):
		return roleAntibody
	case strings.Contains(lot.ID, "Oligo"):
		return roleOligo
	}
	return roleUnknown
}
