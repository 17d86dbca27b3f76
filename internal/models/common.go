package models

import (
	"sort"
	"strings"
	"time"
)

// RiskLevel is one of the four canonical risk buckets.
type RiskLevel string

// Risk levels used by the catalog and the summary counts
const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// RiskLevels lists the buckets in priority order
var RiskLevels = []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow}

// AuditStatus is the lifecycle label assigned to a finding in a follow-up audit
type AuditStatus string

const (
	StatusNew                 AuditStatus = "New"
	StatusOpen                AuditStatus = "Open"
	StatusClosed              AuditStatus = "Closed"
	StatusClosedWithException AuditStatus = "Closed With Exception"
	StatusUnknown             AuditStatus = "Unknown"
)

// IsClosed reports whether the status counts as Closed in summaries.
// Closed With Exception is displayed separately but counted as Closed.
func (s AuditStatus) IsClosed() bool {
	return s == StatusClosed || s == StatusClosedWithException
}

// ParseAuditStatus maps a status label read from a report back to an AuditStatus.
func ParseAuditStatus(label string) AuditStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "new":
		return StatusNew
	case "open":
		return StatusOpen
	case "closed":
		return StatusClosed
	case "closed with exception":
		return StatusClosedWithException
	default:
		return StatusUnknown
	}
}

// Finding is a single raw record produced by scan-file parsing
type Finding struct {
	Name   string `json:"name"`
	Risk   string `json:"risk"`
	Host   string `json:"host,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// CatalogGroup is a curated, reusable description of a vulnerability class
type CatalogGroup struct {
	ID             int      `json:"id" yaml:"id,omitempty"`
	Name           string   `json:"name" yaml:"name"`
	Risk           string   `json:"risk" yaml:"risk"`
	CVSS           string   `json:"cvss,omitempty" yaml:"cvss,omitempty"`
	Observation    string   `json:"observation,omitempty" yaml:"observation,omitempty"`
	Impact         string   `json:"impact,omitempty" yaml:"impact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	Reference      string   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Members        []string `json:"members" yaml:"members"`
}

// Origin tells catalog-backed groups apart from groups created during curation
type Origin string

const (
	OriginCatalog Origin = "catalog"
	OriginSession Origin = "session"
)

// Group is the lightweight summary of a matched or session-local group.
// Positive IDs reference catalog rows; negative IDs are session-local.
type Group struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Risk    string   `json:"risk"`
	Members []string `json:"members"`
}

// Origin derives the group origin from the sign of its ID.
func (g Group) Origin() Origin {
	if g.ID < 0 {
		return OriginSession
	}
	return OriginCatalog
}

// HasMember reports whether name is already a member of the group.
func (g Group) HasMember(name string) bool {
	for _, m := range g.Members {
		if m == name {
			return true
		}
	}
	return false
}

// Details is the full operator-entered record for a session-local group
type Details struct {
	Name           string `json:"name"`
	Risk           string `json:"risk"`
	CVE            string `json:"cve,omitempty"`
	CVSS           string `json:"cvss,omitempty"`
	Observation    string `json:"observation"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
	Reference      string `json:"reference,omitempty"`
}

// MissingFields returns the names of required fields left blank.
func (d Details) MissingFields() []string {
	var missing []string
	required := []struct {
		field string
		value string
	}{
		{"name", d.Name},
		{"risk", d.Risk},
		{"observation", d.Observation},
		{"impact", d.Impact},
		{"recommendation", d.Recommendation},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.field)
		}
	}
	return missing
}

// RiskCounts holds per-bucket finding counts. All buckets default to zero.
type RiskCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total returns the number of classified findings.
func (c RiskCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Get returns the count for a single level.
func (c RiskCounts) Get(level RiskLevel) int {
	switch level {
	case RiskCritical:
		return c.Critical
	case RiskHigh:
		return c.High
	case RiskMedium:
		return c.Medium
	case RiskLow:
		return c.Low
	default:
		return 0
	}
}

// Add increments the bucket for level.
func (c *RiskCounts) Add(level RiskLevel) {
	switch level {
	case RiskCritical:
		c.Critical++
	case RiskHigh:
		c.High++
	case RiskMedium:
		c.Medium++
	case RiskLow:
		c.Low++
	}
}

// ReportRow is one finalized group handed to document generation
type ReportRow struct {
	GroupID int         `json:"group_id"`
	Name    string      `json:"name"`
	Risk    string      `json:"risk"`
	Members []string    `json:"members"`
	Details *Details    `json:"details,omitempty"`
	Status  AuditStatus `json:"status,omitempty"`
}

// PreviousFinding is a row read back from a prior audit artifact
type PreviousFinding struct {
	Name   string      `json:"name"`
	Risk   string      `json:"risk"`
	Status AuditStatus `json:"status,omitempty"`
}

// AuditReport is a finalized audit kept so the next audit can be diffed
// against it.
type AuditReport struct {
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	Rows      []ReportRow `json:"rows"`
	// Unmatched lists findings still uncurated at finalize. They have no row.
	Unmatched []string    `json:"unmatched,omitempty"`
}

// Names returns the display name of every row.
func (r *AuditReport) Names() []string {
	names := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		names = append(names, row.Name)
	}
	return names
}

// DuplicateNames returns, sorted, the names carried by more than one row.
// A diff keys findings by name, so such rows collapse into one entry.
func (r *AuditReport) DuplicateNames() []string {
	seen := make(map[string]int, len(r.Rows))
	var dups []string
	for _, row := range r.Rows {
		seen[row.Name]++
		if seen[row.Name] == 2 {
			dups = append(dups, row.Name)
		}
	}
	sort.Strings(dups)
	return dups
}
