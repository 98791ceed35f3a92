package core

import (
	"fmt"
	"time"
)

// PartnerRole is the kind of external organization.
type PartnerRole string

// Partner roles.
const (
	RoleCMO PartnerRole = "CMO" // contract manufacturing
	RoleCTO PartnerRole = "CTO" // contract testing
)

// Partner is an external manufacturing or testing organization.
type Partner struct {
	Name      string      `json:"name" yaml:"name"`
	Role      PartnerRole `json:"role" yaml:"role"`
	Specialty string      `json:"specialty" yaml:"specialty"`
	Location  string      `json:"location" yaml:"location"`
	Latitude  float64     `json:"lat" yaml:"lat"`
	Longitude float64     `json:"lon" yaml:"lon"`
	SLADays   int         `json:"sla_days" yaml:"sla_days"`
}

// Validate checks the partner's own fields.
func (p *Partner) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("partner name is empty")
	}
	if p.Role != RoleCMO && p.Role != RoleCTO {
		return fmt.Errorf("partner %s: unknown role %q", p.Name, p.Role)
	}
	if p.SLADays <= 0 {
		return fmt.Errorf("partner %s: SLA must be positive, got %d", p.Name, p.SLADays)
	}
	return nil
}

// TechTransfer is an analytical method being moved to a receiving partner.
type TechTransfer struct {
	Partner    string    `json:"partner" yaml:"partner"`
	Method     string    `json:"method" yaml:"method"`
	From       string    `json:"from" yaml:"from"`
	Status     string    `json:"status" yaml:"status"`
	TargetDate time.Time `json:"target_date" yaml:"target_date"`
}
