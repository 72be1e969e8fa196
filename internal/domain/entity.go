package domain

import (
	"strings"
	"time"
)

// EntityType is the node role in the ownership graph. Every entity carries
// exactly one of these at any time; promotion flips Company to Fund.
type EntityType string

const (
	TypeUnknown EntityType = ""
	TypeCompany EntityType = "Company"
	TypeFund    EntityType = "Fund"
)

// Entity is a Company or Fund node keyed by its canonical id: a registry
// organization number when known, otherwise a generated surrogate with
// Placeholder set.
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	CountryCode  string     `json:"country_code,omitempty"`
	Description  string     `json:"description,omitempty"`
	Mission      string     `json:"mission,omitempty"`
	Sectors      []string   `json:"sectors,omitempty"`
	Aliases      []string   `json:"aliases,omitempty"`
	Website      string     `json:"website,omitempty"`
	YearFounded  string     `json:"year_founded,omitempty"`
	NumEmployees *int       `json:"num_employees,omitempty"`
	KeyPeople    []string   `json:"key_people,omitempty"`
	Placeholder  bool       `json:"placeholder,omitempty"`
	ClusterID    *int64     `json:"cluster_id,omitempty"`
	Embedding    []float32  `json:"-"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

// Reference is a loosely-identified entity as produced by extraction: a name,
// maybe a registry id, maybe a type hint.
type Reference struct {
	Name       string     `json:"name"`
	ExternalID string     `json:"external_id,omitempty"`
	TypeHint   EntityType `json:"type_hint,omitempty"`
}

// PortfolioReference is one row of extraction output for an entity's
// portfolio.
type PortfolioReference struct {
	Name          string     `json:"name"`
	ExternalID    string     `json:"external_id,omitempty"`
	OwnershipPct  *float64   `json:"ownership_percentage,omitempty"`
	OwnershipType string     `json:"ownership_type,omitempty"`
	TypeHint      EntityType `json:"type_hint,omitempty"`
}

// ResolutionOutcome tags how a reference mapped onto the graph.
type ResolutionOutcome string

const (
	ResolutionFound     ResolutionOutcome = "found"
	ResolutionCreated   ResolutionOutcome = "created"
	ResolutionAmbiguous ResolutionOutcome = "ambiguous"
)

// Resolution is the tagged result of resolving a Reference. Entity is set for
// Found and Created; Candidates only for Ambiguous.
type Resolution struct {
	Outcome    ResolutionOutcome
	Entity     *Entity
	Candidates []*Entity
}

// PlaceholderPrefix marks generated surrogate ids so later enrichment can
// tell them apart from registry identifiers.
const PlaceholderPrefix = "plc_"

// IsValidOrgNumber reports whether s looks like a Swedish organization
// number: 10 digits, optionally with a dash (556016-0680 or 5560160680).
func IsValidOrgNumber(s string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if len(cleaned) != 10 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatOrgNumber normalizes a 10-digit organization number to the dashed
// NNNNNN-NNNN form. Input that is not a valid org number is returned as is.
func FormatOrgNumber(s string) string {
	if !IsValidOrgNumber(s) {
		return s
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	return digits[:6] + "-" + digits[6:]
}
