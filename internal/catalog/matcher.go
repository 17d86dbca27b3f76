package catalog

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// MatchResult partitions raw finding names into catalog groups and leftovers
type MatchResult struct {
	Groups    []models.Group `json:"matched_groups"`
	Unmatched []string       `json:"unmatched"`
}

// MatchedNames returns the number of names assigned to some group.
func (r *MatchResult) MatchedNames() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Members)
	}
	return n
}

// memberIndex is the exact-line membership test for one catalog group
type memberIndex map[string]struct{}

// newMemberIndex splits every member variant into lines and indexes them
// case-insensitively. Matching is whole-line only so "SQL Injection" never
// matches inside "Blind SQL Injection".
func newMemberIndex(members []string) memberIndex {
	idx := make(memberIndex)
	for _, line := range strings.Split(strings.Join(members, "\n"), "\n") {
		if line == "" {
			continue
		}
		idx[strings.ToLower(line)] = struct{}{}
	}
	return idx
}

func (m memberIndex) contains(name string) bool {
	_, ok := m[strings.ToLower(name)]
	return ok
}

// Match assigns each name to the first catalog group, in row order, whose
// member list contains it as a full line. Names matching nothing are returned
// sorted in Unmatched. Every distinct input name lands in exactly one place.
func Match(names []string, catalog []models.CatalogGroup) *MatchResult {
	indexes := make([]memberIndex, len(catalog))
	for i, g := range catalog {
		indexes[i] = newMemberIndex(g.Members)
	}

	members := make(map[int][]string)
	unmatched := make([]string, 0)
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		matched := false
		for i, g := range catalog {
			if indexes[i].contains(name) {
				members[g.ID] = append(members[g.ID], name)
				matched = true
				break
			}
		}
		if !matched {
			slog.Debug("finding matched no catalog group", "name", name)
			unmatched = append(unmatched, name)
		}
	}

	sort.Strings(unmatched)

	groups := make([]models.Group, 0, len(members))
	for _, g := range catalog {
		m, ok := members[g.ID]
		if !ok {
			continue
		}
		groups = append(groups, models.Group{
			ID:      g.ID,
			Name:    g.Name,
			Risk:    g.Risk,
			Members: m,
		})
	}

	return &MatchResult{
		Groups:    groups,
		Unmatched: unmatched,
	}
}
