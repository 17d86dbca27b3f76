package reconcile

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// OperationKind discriminates the entries of the undo log
type OperationKind string

const (
	OpWithMatched OperationKind = "withMatched"
	OpNewGroup    OperationKind = "newGroup"
	OpSingleNew   OperationKind = "singleNew"
	OpGroupMerge  OperationKind = "groupMerge"
)

// Operation is one reversible entry in the undo log. Which payload fields are
// set depends on Kind:
//
//	withMatched: Name, TargetID
//	newGroup:    Names, NewGroupID
//	singleNew:   Name, NewGroupID
//	groupMerge:  Source, SourceIndex, SourceDetails, TargetID, TargetBefore
type Operation struct {
	Kind          OperationKind   `json:"type"`
	Name          string          `json:"name,omitempty"`
	Names         []string        `json:"names,omitempty"`
	TargetID      int             `json:"target_group_id,omitempty"`
	NewGroupID    int             `json:"new_group_id,omitempty"`
	Source        *models.Group   `json:"source_snapshot,omitempty"`
	SourceIndex   int             `json:"source_index,omitempty"`
	SourceDetails *models.Details `json:"source_details,omitempty"`
	TargetBefore  []string        `json:"target_before,omitempty"`
}

func (op Operation) clone() Operation {
	op.Names = slices.Clone(op.Names)
	op.TargetBefore = slices.Clone(op.TargetBefore)
	if op.Source != nil {
		src := cloneGroup(*op.Source)
		op.Source = &src
	}
	if op.SourceDetails != nil {
		d := *op.SourceDetails
		op.SourceDetails = &d
	}
	return op
}

func (s *State) push(op Operation) {
	s.OperationLog = append(s.OperationLog, op)
}

// MergeWithMatched moves an unmatched finding into an existing group.
func (s *State) MergeWithMatched(name string, targetID int) (*View, error) {
	if !s.isUnmatched(name) {
		return nil, findingNotFound(name)
	}
	ti := s.groupIndex(targetID)
	if ti < 0 {
		return nil, groupNotFound(targetID)
	}

	target := &s.MatchedGroups[ti]
	if !target.HasMember(name) {
		target.Members = append(target.Members, name)
	}
	s.Unmatched = removeString(s.Unmatched, name)

	s.push(Operation{Kind: OpWithMatched, Name: name, TargetID: targetID})
	return s.View(), nil
}

// MergeWithUnmatched creates a new session-local group from several unmatched
// findings, storing the operator-entered details under the new negative id.
func (s *State) MergeWithUnmatched(names []string, details models.Details) (*View, error) {
	id, err := s.createGroup(names, details)
	if err != nil {
		return nil, err
	}
	s.push(Operation{Kind: OpNewGroup, Names: dedupe(names), NewGroupID: id})
	return s.View(), nil
}

// AddDetails promotes a single unmatched finding to its own group.
func (s *State) AddDetails(name string, details models.Details) (*View, error) {
	id, err := s.createGroup([]string{name}, details)
	if err != nil {
		return nil, err
	}
	s.push(Operation{Kind: OpSingleNew, Name: name, NewGroupID: id})
	return s.View(), nil
}

// createGroup validates and applies a new-group operation without logging it.
func (s *State) createGroup(names []string, details models.Details) (int, error) {
	if len(names) == 0 {
		return 0, &ValidationError{Message: "at least one finding name is required"}
	}
	if missing := details.MissingFields(); len(missing) > 0 {
		return 0, &ValidationError{Fields: missing}
	}

	members := dedupe(names)
	for _, name := range members {
		if !s.isUnmatched(name) {
			return 0, findingNotFound(name)
		}
	}

	id := s.nextSessionID()
	s.MatchedGroups = append(s.MatchedGroups, models.Group{
		ID:      id,
		Name:    details.Name,
		Risk:    details.Risk,
		Members: slices.Clone(members),
	})
	s.NewGroupDetails[id] = details
	for _, name := range members {
		s.Unmatched = removeString(s.Unmatched, name)
	}
	return id, nil
}

// MergeMatchedGroups folds the source group into the target and removes the
// source.
func (s *State) MergeMatchedGroups(sourceID, targetID int) (*View, error) {
	if sourceID == targetID {
		return nil, &ValidationError{Message: "cannot merge a group into itself"}
	}
	si := s.groupIndex(sourceID)
	if si < 0 {
		return nil, groupNotFound(sourceID)
	}
	ti := s.groupIndex(targetID)
	if ti < 0 {
		return nil, groupNotFound(targetID)
	}

	snapshot := cloneGroup(s.MatchedGroups[si])
	target := &s.MatchedGroups[ti]
	before := slices.Clone(target.Members)

	for _, m := range snapshot.Members {
		if !target.HasMember(m) {
			target.Members = append(target.Members, m)
		}
	}

	op := Operation{
		Kind:         OpGroupMerge,
		Source:       &snapshot,
		SourceIndex:  si,
		TargetID:     targetID,
		TargetBefore: before,
	}
	if d, ok := s.NewGroupDetails[sourceID]; ok {
		details := d
		op.SourceDetails = &details
		delete(s.NewGroupDetails, sourceID)
	}

	s.MatchedGroups = slices.Delete(s.MatchedGroups, si, si+1)
	s.push(op)
	return s.View(), nil
}

// Undo reverses the most recent operation.
func (s *State) Undo() (*View, error) {
	if len(s.OperationLog) == 0 {
		return nil, &EmptyLogError{}
	}
	op := s.OperationLog[len(s.OperationLog)-1]

	switch op.Kind {
	case OpWithMatched:
		if ti := s.groupIndex(op.TargetID); ti >= 0 {
			s.MatchedGroups[ti].Members = removeString(s.MatchedGroups[ti].Members, op.Name)
		}
		s.Unmatched = insertSorted(s.Unmatched, op.Name)

	case OpNewGroup, OpSingleNew:
		names := op.Names
		if op.Kind == OpSingleNew {
			names = []string{op.Name}
		}
		if gi := s.groupIndex(op.NewGroupID); gi >= 0 {
			s.MatchedGroups = slices.Delete(s.MatchedGroups, gi, gi+1)
		}
		delete(s.NewGroupDetails, op.NewGroupID)
		for _, name := range names {
			s.Unmatched = insertSorted(s.Unmatched, name)
		}

	case OpGroupMerge:
		if op.Source == nil {
			return nil, fmt.Errorf("corrupt undo log: group merge without source snapshot")
		}
		// The target goes back to exactly its pre-merge member list, so members
		// it already shared with the source stay put.
		if ti := s.groupIndex(op.TargetID); ti >= 0 {
			s.MatchedGroups[ti].Members = slices.Clone(op.TargetBefore)
		}
		at := min(max(op.SourceIndex, 0), len(s.MatchedGroups))
		s.MatchedGroups = slices.Insert(s.MatchedGroups, at, cloneGroup(*op.Source))
		if op.SourceDetails != nil {
			s.NewGroupDetails[op.Source.ID] = *op.SourceDetails
		}

	default:
		return nil, fmt.Errorf("corrupt undo log: unknown operation %q", op.Kind)
	}

	s.OperationLog = s.OperationLog[:len(s.OperationLog)-1]
	slog.Debug("undid curation operation", "type", op.Kind, "remaining", len(s.OperationLog))
	return s.View(), nil
}

// dedupe keeps the first occurrence of each name.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
