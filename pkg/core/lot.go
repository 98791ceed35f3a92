package core

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Stage
// =============================================================================

// Stage is the manufacturing stage a lot belongs to.
type Stage string

// Manufacturing stages.
const (
	StageAntibody      Stage = "Antibody Intermediate"
	StageOligo         Stage = "Oligonucleotide"
	StageDrugSubstance Stage = "Drug Substance"
	StageDrugProduct   Stage = "Drug Product"
	StageAnalytical    Stage = "Analytical Testing"
)

// Stages lists every stage in manufacturing order.
var Stages = []Stage{StageAntibody, StageOligo, StageDrugSubstance, StageDrugProduct, StageAnalytical}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// String returns the display name of the stage.
func (s Stage) String() string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

// ParseStage converts a display name or short alias to a Stage.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "antibody", "antibody intermediate", "ab":
		return StageAntibody, nil
	case "oligo", "oligonucleotide":
		return StageOligo, nil
	case "ds", "drug substance":
		return StageDrugSubstance, nil
	case "dp", "drug product":
		return StageDrugProduct, nil
	case "analytical", "analytical testing":
		return StageAnalytical, nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

// =============================================================================
// Product
// =============================================================================

// Product is one of the therapeutic programs a lot is made for.
type Product string

// Programs.
const (
	ProductDM1  Product = "DM1 (AOC-1001)"
	ProductDMD  Product = "DMD (AOC-1020)"
	ProductFSHD Product = "FSHD (AOC-1044)"
)

// Products lists every program.
var Products = []Product{ProductDM1, ProductDMD, ProductFSHD}

// Valid reports whether p is one of the known programs.
func (p Product) Valid() bool {
	for _, known := range Products {
		if p == known {
			return true
		}
	}
	return false
}

// Prefix returns the program prefix used in lot identifiers ("DM1" for "DM1 (AOC-1001)").
func (p Product) Prefix() string {
	s := string(p)
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}

// ParseProduct accepts the full program name or its prefix, case-insensitively.
func ParseProduct(s string) (Product, error) {
	s = strings.TrimSpace(s)
	for _, p := range Products {
		if strings.EqualFold(s, string(p)) || strings.EqualFold(s, p.Prefix()) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown product %q", s)
}

// =============================================================================
// LotStatus
// =============================================================================

// LotStatus is the QC lifecycle status of a lot.
type LotStatus string

// Lot lifecycle statuses in workflow order.
const (
	LotTesting         LotStatus = "Testing in Progress"
	LotDataReview      LotStatus = "Data Review Pending"
	LotAwaitingRelease LotStatus = "Awaiting Release"
	LotReleased        LotStatus = "Released"
)

// LotStatuses lists lot statuses in workflow order.
var LotStatuses = []LotStatus{LotTesting, LotDataReview, LotAwaitingRelease, LotReleased}

// Valid reports whether s is a known lot status.
func (s LotStatus) Valid() bool {
	for _, known := range LotStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// =============================================================================
// Attributes
// =============================================================================

// Attribute names a measured quality attribute.
type Attribute string

// Quality attributes carried on a lot.
const (
	AttrPurity       Attribute = "purity"
	AttrMainImpurity Attribute = "main_impurity"
	AttrAggregate    Attribute = "aggregate"
)

// Attributes holds the optional numeric quality results of a lot.
// A nil field means the attribute was not measured.
type Attributes struct {
	Purity       *float64 `json:"purity,omitempty" yaml:"purity,omitempty"`
	MainImpurity *float64 `json:"main_impurity,omitempty" yaml:"main_impurity,omitempty"`
	Aggregate    *float64 `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// Value returns the measured value of a and whether it is present.
func (a Attributes) Value(attr Attribute) (float64, bool) {
	var p *float64
	switch attr {
	case AttrPurity:
		p = a.Purity
	case AttrMainImpurity:
		p = a.MainImpurity
	case AttrAggregate:
		p = a.Aggregate
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Float returns a pointer to v. Handy for building Attributes literals.
func Float(v float64) *float64 {
	return &v
}

// =============================================================================
// Lot
// =============================================================================

// Lot is a manufactured batch at one stage of the supply chain.
type Lot struct {
	ID         string     `json:"id" yaml:"id"`
	Product    Product    `json:"product" yaml:"product"`
	Stage      Stage      `json:"stage" yaml:"stage"`
	Partner    string     `json:"partner" yaml:"partner"`
	Status     LotStatus  `json:"status" yaml:"status"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty" yaml:"released_at,omitempty"`
	// SLADays is the contractual turnaround copied from the partner.
	SLADays       int        `json:"sla_days" yaml:"sla_days"`
	ActualTATDays int        `json:"actual_tat_days" yaml:"actual_tat_days"`
	Attributes    Attributes `json:"attributes" yaml:"attributes"`
}

// Released reports whether the lot has been released.
func (l *Lot) Released() bool {
	return l.Status == LotReleased
}

// OnTime reports whether the actual turnaround met the contractual SLA.
func (l *Lot) OnTime() bool {
	return l.ActualTATDays <= l.SLADays
}

// AtRisk reports whether an unreleased lot has already overrun its SLA.
func (l *Lot) AtRisk() bool {
	return !l.Released() && l.ActualTATDays > l.SLADays
}

// Validate checks the lot's own fields. Cross-table checks (partner exists,
// ids unique) belong to the snapshot builder.
func (l *Lot) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("lot id is empty")
	}
	if !l.Product.Valid() {
		return fmt.Errorf("lot %s: unknown product %q", l.ID, l.Product)
	}
	if !l.Stage.Valid() {
		return fmt.Errorf("lot %s: unknown stage %q", l.ID, l.Stage)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("lot %s: unknown status %q", l.ID, l.Status)
	}
	if l.Partner == "" {
		return fmt.Errorf("lot %s: partner is empty", l.ID)
	}
	if l.ReleasedAt != nil && !l.Released() {
		return fmt.Errorf("lot %s: release date set on a lot with status %q", l.ID, l.Status)
	}
	return nil
}

// Edge is a lineage link: Child was made from Parent.
type Edge struct {
	Parent string `json:"parent" yaml:"parent"`
	Child  string `json:"child" yaml:"child"`
}

func (e Edge) String() string {
	return e.Parent + " -> " + e.Child
}
