package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
	"gopkg.in/yaml.v3"
)

// Policy defines gating rules for a follow-up audit.
type Policy struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`
}

// Rules contains all configurable policy rules. Nil limits are not checked.
type Rules struct {
	MaxNew          *int     `yaml:"max_new,omitempty"`
	MaxNewCritical  *int     `yaml:"max_new_critical,omitempty"`
	MaxNewHigh      *int     `yaml:"max_new_high,omitempty"`
	MaxOpenCritical *int     `yaml:"max_open_critical,omitempty"`
	MaxUnmatched    *int     `yaml:"max_unmatched,omitempty"`
	ForbidFindings  []string `yaml:"forbid_findings,omitempty"`
}

// Input is what a policy is evaluated against.
type Input struct {
	Labels    map[string]models.AuditStatus
	Breakdown aggregator.StatusBreakdown
	Unmatched int
}

// Violation is a single policy failure.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result holds the outcome of a policy check.
type Result struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations"`
}

// LoadFromFile reads a policy file. A missing file yields a nil policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	return &p, nil
}

// FindPolicyFile searches for a policy file in the current directory
// and parent directories up to the filesystem root.
func FindPolicyFile() string {
	names := []string{".vulnrecon-policy.yaml", ".vulnrecon-policy.yml"}

	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Evaluate checks an audit outcome against the policy rules.
func (p *Policy) Evaluate(in Input) *Result {
	if p == nil {
		return &Result{Pass: true}
	}

	var violations []Violation
	limit := func(rule string, limit *int, count int, what string) {
		if limit != nil && count > *limit {
			violations = append(violations, Violation{
				Rule:    rule,
				Message: fmt.Sprintf("%s %d exceeds limit %d", what, count, *limit),
			})
		}
	}

	newTotal := 0
	for _, s := range in.Labels {
		if s == models.StatusNew {
			newTotal++
		}
	}

	limit("max_new", p.Rules.MaxNew, newTotal, "new findings")
	limit("max_new_critical", p.Rules.MaxNewCritical, in.Breakdown.New.Critical, "new critical findings")
	limit("max_new_high", p.Rules.MaxNewHigh, in.Breakdown.New.High, "new high findings")
	limit("max_open_critical", p.Rules.MaxOpenCritical, in.Breakdown.Open.Critical, "open critical findings")
	limit("max_unmatched", p.Rules.MaxUnmatched, in.Unmatched, "unmatched findings")

	if len(p.Rules.ForbidFindings) > 0 {
		forbidden := append([]string(nil), p.Rules.ForbidFindings...)
		sort.Strings(forbidden)
		for _, name := range forbidden {
			switch status := in.Labels[name]; status {
			case models.StatusNew, models.StatusOpen:
				violations = append(violations, Violation{
					Rule:    "forbid_findings",
					Message: fmt.Sprintf("forbidden finding %q is %s", name, status),
				})
			}
		}
	}

	return &Result{
		Pass:       len(violations) == 0,
		Violations: violations,
	}
}
