package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/vulnrecon/internal/models"
)

const (
	// MaxNameLength bounds a single finding name.
	MaxNameLength = 4096

	// MaxNamesPerRequest bounds the names accepted by one request.
	MaxNamesPerRequest = 10_000

	// MaxDetailFieldLength bounds each operator-entered detail field.
	MaxDetailFieldLength = 64 * 1024
)

// ValidateSessionID verifies the id is a canonical UUID.
func ValidateSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("session id must be a UUID")
	}
	return nil
}

// ValidateName checks a single finding name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("finding name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("finding name exceeds %d bytes", MaxNameLength)
	}
	return nil
}

// ValidateNames checks a list of finding names. An empty list is allowed here;
// operations that need names report that themselves.
func ValidateNames(names []string) error {
	if len(names) > MaxNamesPerRequest {
		return fmt.Errorf("too many names: %d exceeds %d", len(names), MaxNamesPerRequest)
	}
	for i, n := range names {
		if err := ValidateName(n); err != nil {
			return fmt.Errorf("names[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateDetails bounds the size of detail fields. Required fields are
// checked by the curation operations.
func ValidateDetails(d models.Details) error {
	fields := map[string]string{
		"name":           d.Name,
		"risk":           d.Risk,
		"cve":            d.CVE,
		"cvss":           d.CVSS,
		"observation":    d.Observation,
		"impact":         d.Impact,
		"recommendation": d.Recommendation,
		"reference":      d.Reference,
	}
	for field, v := range fields {
		if len(v) > MaxDetailFieldLength {
			return fmt.Errorf("%s exceeds %d bytes", field, MaxDetailFieldLength)
		}
	}
	return nil
}
