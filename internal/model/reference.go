package model

import (
	"strings"
	"time"
)

// AdvisorStatus is the registration status reported by the regulator
type AdvisorStatus string

const (
	StatusActive    AdvisorStatus = "active"
	StatusRevoked   AdvisorStatus = "revoked"
	StatusSuspended AdvisorStatus = "suspended"
	StatusUnknown   AdvisorStatus = "unknown"
)

// ParseAdvisorStatus maps a registry status string to AdvisorStatus.
// Anything unrecognized is StatusUnknown.
func ParseAdvisorStatus(s string) AdvisorStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "registered", "valid":
		return StatusActive
	case "revoked", "cancelled", "canceled":
		return StatusRevoked
	case "suspended":
		return StatusSuspended
	default:
		return StatusUnknown
	}
}

// AdvisorRecord is one row of the regulatory advisor registry
type AdvisorRecord struct {
	RegistrationNumber string        `json:"registration_number" yaml:"registration_number"`
	Name               string        `json:"name" yaml:"name"`
	Status             AdvisorStatus `json:"status" yaml:"status"`
	RegisteredEntity   string        `json:"registered_entity,omitempty" yaml:"registered_entity"`
	Jurisdiction       string        `json:"jurisdiction,omitempty" yaml:"jurisdiction"`
}

// DomainRecord is one row of the WHOIS-like domain table
type DomainRecord struct {
	Domain       string    `json:"domain" yaml:"domain"`
	Registrar    string    `json:"registrar,omitempty" yaml:"registrar"`
	CreationDate time.Time `json:"creation_date" yaml:"creation_date"`
	Country      string    `json:"country,omitempty" yaml:"country"`
	Flags        []string  `json:"flags,omitempty" yaml:"flags"`
}

// AgeDays returns the whole days between the creation date and asOf. ok is
// false when the creation date is unknown. A creation date after asOf gives
// a negative age.
func (d DomainRecord) AgeDays(asOf time.Time) (days int, ok bool) {
	if d.CreationDate.IsZero() {
		return 0, false
	}
	return int(asOf.Sub(d.CreationDate).Hours() / 24), true
}
