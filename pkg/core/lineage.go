package core

import (
	"errors"
	"fmt"
)

// Chain is the resolved genealogy of one Drug Product lot.
type Chain struct {
	Antibody      *Lot `json:"antibody"`
	Oligo         *Lot `json:"oligo"`
	DrugSubstance *Lot `json:"drug_substance"`
	DrugProduct   *Lot `json:"drug_product"`
}

// Lots returns the chain members from raw material to finished product.
func (c *Chain) Lots() []*Lot {
	return []*Lot{c.Antibody, c.Oligo, c.DrugSubstance, c.DrugProduct}
}

// =============================================================================
// Errors
// =============================================================================

// Sentinel errors for errors.Is matching.
var (
	ErrLineageIncomplete = errors.New("lineage incomplete")
	ErrMissingAttribute  = errors.New("missing attribute")
)

// LineageIncompleteError is returned when a Drug Product lot's genealogy
// cannot be resolved to exactly one DS parent and two raw-material parents.
type LineageIncompleteError struct {
	LotID  string
	Reason string
}

func (e *LineageIncompleteError) Error() string {
	return fmt.Sprintf("lineage incomplete for %s: %s", e.LotID, e.Reason)
}

// Is lets errors.Is(err, ErrLineageIncomplete) match.
func (e *LineageIncompleteError) Is(target error) bool {
	return target == ErrLineageIncomplete
}

// MissingAttributeError is returned when a lot referenced by a CQA
// comparison has no record.
type MissingAttributeError struct {
	LotID     string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("missing attribute data: lot %s not found", e.LotID)
	}
	return fmt.Sprintf("missing attribute %s for lot %s", e.Attribute, e.LotID)
}

// Is lets errors.Is(err, ErrMissingAttribute) match.
func (e *MissingAttributeError) Is(target error) bool {
	return target == ErrMissingAttribute
}
