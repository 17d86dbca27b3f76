// Package reconcile owns the session-scoped reconciliation state seeded from a
// catalog match, the curation operations an operator applies to it, and their
// undo log.
//
// A State is not safe for concurrent mutation. Callers serialize operations per
// session; see the session package.
package reconcile

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// DefaultMaxUnmatched bounds how many unmatched names a session keeps
const DefaultMaxUnmatched = 100

// Limits caps the size of persisted session state. Zero means unlimited.
type Limits struct {
	MaxUnmatched int `json:"max_unmatched"`
	MaxGroups    int `json:"max_groups"`
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxUnmatched: DefaultMaxUnmatched}
}

// State is the mutable reconciliation model for one session.
//
// Invariants: a finding name is in exactly one group's Members or in
// Unmatched; every negative group id has a NewGroupDetails entry; Unmatched is
// sorted.
type State struct {
	MatchedGroups   []models.Group         `json:"matched_groups"`
	Unmatched       []string               `json:"unmatched"`
	NewGroupDetails map[int]models.Details `json:"new_group_details"`
	OperationLog    []Operation            `json:"operation_log"`
}

// View is the re-renderable projection returned by every operation
type View struct {
	MatchedGroups []models.Group `json:"matched_groups"`
	Unmatched     []string       `json:"unmatched"`
}

// NewState seeds a session from a catalog match, applying limits.
// Entries beyond a cap are dropped and logged, never rejected.
func NewState(result *catalog.MatchResult, limits Limits) *State {
	groups := cloneGroups(result.Groups)
	unmatched := slices.Clone(result.Unmatched)
	if unmatched == nil {
		unmatched = []string{}
	}
	sort.Strings(unmatched)

	if limits.MaxUnmatched > 0 && len(unmatched) > limits.MaxUnmatched {
		slog.Warn("session cap reached, dropping unmatched findings",
			"kept", limits.MaxUnmatched,
			"dropped", len(unmatched)-limits.MaxUnmatched)
		unmatched = unmatched[:limits.MaxUnmatched]
	}
	if limits.MaxGroups > 0 && len(groups) > limits.MaxGroups {
		slog.Warn("session cap reached, dropping matched groups",
			"kept", limits.MaxGroups,
			"dropped", len(groups)-limits.MaxGroups)
		groups = groups[:limits.MaxGroups]
	}

	return &State{
		MatchedGroups:   groups,
		Unmatched:       unmatched,
		NewGroupDetails: make(map[int]models.Details),
		OperationLog:    []Operation{},
	}
}

// View returns a deep copy of the groups and unmatched names.
func (s *State) View() *View {
	return &View{
		MatchedGroups: cloneGroups(s.MatchedGroups),
		Unmatched:     slices.Clone(s.Unmatched),
	}
}

// Clone returns a deep copy of the whole state, including the operation log.
func (s *State) Clone() *State {
	c := &State{
		MatchedGroups:   cloneGroups(s.MatchedGroups),
		Unmatched:       slices.Clone(s.Unmatched),
		NewGroupDetails: make(map[int]models.Details, len(s.NewGroupDetails)),
		OperationLog:    make([]Operation, 0, len(s.OperationLog)),
	}
	for id, d := range s.NewGroupDetails {
		c.NewGroupDetails[id] = d
	}
	for _, op := range s.OperationLog {
		c.OperationLog = append(c.OperationLog, op.clone())
	}
	return c
}

// Group returns a copy of the group with the given id.
func (s *State) Group(id int) (models.Group, bool) {
	i := s.groupIndex(id)
	if i < 0 {
		return models.Group{}, false
	}
	return cloneGroup(s.MatchedGroups[i]), true
}

// CanUndo reports whether the operation log has anything to reverse.
func (s *State) CanUndo() bool {
	return len(s.OperationLog) > 0
}

// Finalize returns one report row per group, in display order.
// Session-local groups carry their operator-entered details.
func (s *State) Finalize() []models.ReportRow {
	rows := make([]models.ReportRow, 0, len(s.MatchedGroups))
	for _, g := range s.MatchedGroups {
		row := models.ReportRow{
			GroupID: g.ID,
			Name:    g.Name,
			Risk:    g.Risk,
			Members: slices.Clone(g.Members),
		}
		if d, ok := s.NewGroupDetails[g.ID]; ok {
			details := d
			row.Details = &details
		}
		rows = append(rows, row)
	}
	return rows
}

// SessionGroups returns the operator-created groups as catalog rows, ready for
// the catalog-update step.
func (s *State) SessionGroups() []models.CatalogGroup {
	var groups []models.CatalogGroup
	for _, g := range s.MatchedGroups {
		if g.Origin() != models.OriginSession {
			continue
		}
		d, ok := s.NewGroupDetails[g.ID]
		if !ok {
			continue
		}
		groups = append(groups, catalog.GroupFromDetails(d, g.Members))
	}
	return groups
}

func (s *State) groupIndex(id int) int {
	for i, g := range s.MatchedGroups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) isUnmatched(name string) bool {
	_, found := slices.BinarySearch(s.Unmatched, name)
	return found
}

// nextSessionID returns -(len(MatchedGroups)+1), moved below every session id
// still in use when that value is not strictly lower. Ids of groups merged
// away stay reserved while the undo log can restore them.
func (s *State) nextSessionID() int {
	id := -(len(s.MatchedGroups) + 1)
	for _, g := range s.MatchedGroups {
		if g.ID < 0 {
			id = min(id, g.ID-1)
		}
	}
	for existing := range s.NewGroupDetails {
		id = min(id, existing-1)
	}
	for _, op := range s.OperationLog {
		if op.NewGroupID < 0 {
			id = min(id, op.NewGroupID-1)
		}
		if op.Source != nil && op.Source.ID < 0 {
			id = min(id, op.Source.ID-1)
		}
	}
	return id
}

func cloneGroup(g models.Group) models.Group {
	g.Members = slices.Clone(g.Members)
	return g
}

func cloneGroups(groups []models.Group) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, cloneGroup(g))
	}
	return out
}

// insertSorted adds name to a sorted slice unless it is already present.
func insertSorted(list []string, name string) []string {
	i, found := slices.BinarySearch(list, name)
	if found {
		return list
	}
	return slices.Insert(list, i, name)
}

// removeString returns a new slice without name.
func removeString(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}
