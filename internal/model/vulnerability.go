package model

import (
	"strings"
	"time"
)

// Severity is a vulnerability severity tier, totally ordered for tie-breaking.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the ordering weight of a severity tier; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a severity string to a tier, defaulting to low.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(raw) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Vulnerability is an immutable catalog record. Catalog sync replaces the
// whole set; individual records are never mutated in place.
type Vulnerability struct {
	ID                string    `json:"id"` // catalog identifier, e.g. CVE-2024-0001
	Summary           string    `json:"summary"`
	Severity          Severity  `json:"severity"`
	Score             float64   `json:"score"`
	Ecosystems        []string  `json:"ecosystems"` // affected languages/ecosystems
	VulnerablePattern string    `json:"vulnerable_pattern,omitempty"`
	FixedPattern      string    `json:"fixed_pattern,omitempty"`
	PublishedAt       time.Time `json:"published_at"`
}

// AffectsLanguage reports whether the record's ecosystem tags intersect the
// given repository language.
func (v Vulnerability) AffectsLanguage(language string) bool {
	for _, eco := range v.Ecosystems {
		if strings.EqualFold(eco, language) {
			return true
		}
	}
	return false
}
