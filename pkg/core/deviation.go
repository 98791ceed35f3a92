package core

import "fmt"

// DeviationType classifies a quality event.
type DeviationType string

// Deviation types.
const (
	DeviationStandard DeviationType = "Deviation"
	DeviationOOS      DeviationType = "OOS"
	DeviationOOT      DeviationType = "OOT"
)

// DeviationTypes lists every deviation type.
var DeviationTypes = []DeviationType{DeviationStandard, DeviationOOS, DeviationOOT}

// Valid reports whether t is a known deviation type.
func (t DeviationType) Valid() bool {
	for _, known := range DeviationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DeviationStatus is a step in the investigation workflow.
type DeviationStatus string

// Workflow steps, in order.
const (
	DevNewEvent           DeviationStatus = "New Event"
	DevInvestigation      DeviationStatus = "Investigation"
	DevCAPAPlan           DeviationStatus = "CAPA Plan"
	DevEffectivenessCheck DeviationStatus = "Effectiveness Check"
	DevClosed             DeviationStatus = "Closed"
)

// DeviationStatuses lists the workflow steps in order.
var DeviationStatuses = []DeviationStatus{DevNewEvent, DevInvestigation, DevCAPAPlan, DevEffectivenessCheck, DevClosed}

// Rank returns the position of s in the workflow, or -1 if s is unknown.
func (s DeviationStatus) Rank() int {
	for i, known := range DeviationStatuses {
		if s == known {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known workflow step.
func (s DeviationStatus) Valid() bool {
	return s.Rank() >= 0
}

// Deviation is a quality event raised against a lot.
type Deviation struct {
	ID      string          `json:"id" yaml:"id"`
	LotID   string          `json:"lot_id" yaml:"lot_id"`
	Product Product         `json:"product" yaml:"product"`
	Partner string          `json:"partner" yaml:"partner"`
	Type    DeviationType   `json:"type" yaml:"type"`
	Status  DeviationStatus `json:"status" yaml:"status"`
	AgeDays int             `json:"age_days" yaml:"age_days"`
	// RootCause is a free-text tag such as "Analyst Error".
	RootCause string `json:"root_cause" yaml:"root_cause"`
}

// Open reports whether the deviation is still active.
func (d *Deviation) Open() bool {
	return d.Status != DevClosed
}

// Validate checks the deviation's own fields.
func (d *Deviation) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("deviation id is empty")
	}
	if d.LotID == "" {
		return fmt.Errorf("deviation %s: lot id is empty", d.ID)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("deviation %s: unknown type %q", d.ID, d.Type)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("deviation %s: unknown status %q", d.ID, d.Status)
	}
	if d.AgeDays < 0 {
		return fmt.Errorf("deviation %s: negative age %d", d.ID, d.AgeDays)
	}
	return nil
}
