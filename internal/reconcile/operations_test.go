package reconcile

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetails(name string) models.Details {
	return models.Details{
		Name:           name,
		Risk:           "Medium",
		CVE:            "CVE-2024-0001",
		CVSS:           "5.3",
		Observation:    "Observed weak cipher suites.",
		Impact:         "Traffic may be decrypted.",
		Recommendation: "Disable weak ciphers.",
		Reference:      "https://example.com/ciphers",
	}
}

// testState seeds groups 3 and 5 plus four unmatched findings.
func testState() *State {
	return NewState(&catalog.MatchResult{
		Groups: []models.Group{
			{ID: 3, Name: "SQL Injection", Risk: "High", Members: []string{"SQLi"}},
			{ID: 5, Name: "Weak TLS", Risk: "Medium", Members: []string{"TLS 1.0", "SSLv3"}},
		},
		Unmatched: []string{"Weak Cipher B", "Weak Cipher A", "Open Redirect", "Clickjacking"},
	}, DefaultLimits())
}

func assertInvariants(t *testing.T, s *State) {
	t.Helper()

	assert.True(t, sort.StringsAreSorted(s.Unmatched), "unmatched not sorted: %v", s.Unmatched)

	placed := map[string]int{}
	for _, g := range s.MatchedGroups {
		for _, m := range g.Members {
			placed[m]++
		}
		if g.ID < 0 {
			_, ok := s.NewGroupDetails[g.ID]
			assert.True(t, ok, "group %d has no details", g.ID)
		}
	}
	for _, u := range s.Unmatched {
		placed[u]++
	}
	for name, n := range placed {
		assert.Equal(t, 1, n, "%q placed %d times", name, n)
	}
}

func TestNewStateSortsAndCaps(t *testing.T) {
	s := NewState(&catalog.MatchResult{
		Unmatched: []string{"d", "b", "a", "c"},
	}, Limits{MaxUnmatched: 3})

	assert.Equal(t, []string{"a", "b", "c"}, s.Unmatched)
	assert.NotNil(t, s.MatchedGroups)
	assert.NotNil(t, s.NewGroupDetails)
	assert.Empty(t, s.OperationLog)
}

func TestNewStateCapsGroups(t *testing.T) {
	s := NewState(&catalog.MatchResult{
		Groups: []models.Group{
			{ID: 1, Members: []string{"a"}},
			{ID: 2, Members: []string{"b"}},
		},
	}, Limits{MaxGroups: 1})

	require.Len(t, s.MatchedGroups, 1)
	assert.Equal(t, 1, s.MatchedGroups[0].ID)
}

func TestNewStateDoesNotAliasMatchResult(t *testing.T) {
	result := &catalog.MatchResult{
		Groups:    []models.Group{{ID: 1, Members: []string{"a"}}},
		Unmatched: []string{"b"},
	}
	s := NewState(result, DefaultLimits())

	_, err := s.MergeWithMatched("b", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Groups[0].Members)
	assert.Equal(t, []string{"b"}, result.Unmatched)
}

func TestMergeWithMatched(t *testing.T) {
	s := testState()

	view, err := s.MergeWithMatched("Open Redirect", 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"SQLi", "Open Redirect"}, view.MatchedGroups[0].Members)
	assert.Equal(t, []string{"Clickjacking", "Weak Cipher A", "Weak Cipher B"}, view.Unmatched)
	require.Len(t, s.OperationLog, 1)
	assert.Equal(t, Operation{Kind: OpWithMatched, Name: "Open Redirect", TargetID: 3}, s.OperationLog[0])
	assertInvariants(t, s)
}

func TestMergeWithMatchedNotFound(t *testing.T) {
	tests := []struct {
		name     string
		finding  string
		targetID int
		wantKind string
	}{
		{name: "unknown finding", finding: "Nope", targetID: 3, wantKind: "finding"},
		{name: "already grouped finding", finding: "SQLi", targetID: 5, wantKind: "finding"},
		{name: "unknown group", finding: "Clickjacking", targetID: 99, wantKind: "group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState()
			before := s.Clone()

			_, err := s.MergeWithMatched(tt.finding, tt.targetID)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))

			var nf *NotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, tt.wantKind, nf.Kind)
			assert.Equal(t, before, s, "failed operation must not mutate state")
		})
	}
}

func TestMergeWithUnmatched(t *testing.T) {
	s := testState()

	view, err := s.MergeWithUnmatched([]string{"Weak Cipher A", "Weak Cipher B"}, testDetails("Weak Ciphers"))
	require.NoError(t, err)

	require.Len(t, view.MatchedGroups, 3)
	created := view.MatchedGroups[2]
	assert.Equal(t, -3, created.ID)
	assert.Equal(t, models.OriginSession, created.Origin())
	assert.Equal(t, "Weak Ciphers", created.Name)
	assert.Equal(t, "Medium", created.Risk)
	assert.Equal(t, []string{"Weak Cipher A", "Weak Cipher B"}, created.Members)
	assert.Equal(t, []string{"Clickjacking", "Open Redirect"}, view.Unmatched)
	assert.Equal(t, testDetails("Weak Ciphers"), s.NewGroupDetails[-3])
	assertInvariants(t, s)
}

func TestMergeWithUnmatchedValidation(t *testing.T) {
	tests := []struct {
		name       string
		names      []string
		details    models.Details
		wantFields []string
	}{
		{name: "empty names", names: nil, details: testDetails("X")},
		{
			name:       "missing risk and impact",
			names:      []string{"Clickjacking"},
			details:    models.Details{Name: "X", Observation: "o", Recommendation: "r"},
			wantFields: []string{"risk", "impact"},
		},
		{
			name:       "blank name",
			names:      []string{"Clickjacking"},
			details:    func() models.Details { d := testDetails(" "); return d }(),
			wantFields: []string{"name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState()
			before := s.Clone()

			_, err := s.MergeWithUnmatched(tt.names, tt.details)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantFields, ve.Fields)
			assert.Equal(t, before, s)
		})
	}
}

func TestMergeWithUnmatchedRejectsGroupedName(t *testing.T) {
	s := testState()
	before := s.Clone()

	_, err := s.MergeWithUnmatched([]string{"Clickjacking", "SQLi"}, testDetails("Mixed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, before, s)
}

func TestNewGroupIDsStrictlyDecrease(t *testing.T) {
	s := testState()

	_, err := s.AddDetails("Clickjacking", testDetails("Clickjacking"))
	require.NoError(t, err)
	_, err = s.AddDetails("Open Redirect", testDetails("Open Redirect"))
	require.NoError(t, err)

	ids := []int{s.MatchedGroups[2].ID, s.MatchedGroups[3].ID}
	assert.Equal(t, []int{-3, -4}, ids)

	// Shrinking the group list must not reuse an id that is still taken.
	_, err = s.MergeMatchedGroups(3, 5)
	require.NoError(t, err)
	_, err = s.MergeWithUnmatched([]string{"Weak Cipher A"}, testDetails("Cipher"))
	require.NoError(t, err)

	last := s.MatchedGroups[len(s.MatchedGroups)-1]
	assert.Equal(t, -5, last.ID)
	assertInvariants(t, s)

	// A session group merged away keeps its id reserved: the merge can still
	// be undone and would bring it back.
	s = testState()
	_, err = s.MergeWithUnmatched([]string{"Weak Cipher A"}, testDetails("Cipher"))
	require.NoError(t, err)
	_, err = s.MergeMatchedGroups(-3, 3)
	require.NoError(t, err)
	_, err = s.MergeWithUnmatched([]string{"Weak Cipher B"}, testDetails("Cipher B"))
	require.NoError(t, err)

	assert.Equal(t, -4, s.OperationLog[2].NewGroupID)

	_, err = s.Undo()
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	_, ok := s.Group(-3)
	assert.True(t, ok, "merged-away group should be restored")
	_, ok = s.Group(-4)
	assert.False(t, ok)
	assertInvariants(t, s)
}

func TestAddDetails(t *testing.T) {
	s := testState()

	view, err := s.AddDetails("Clickjacking", testDetails("Clickjacking"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Clickjacking"}, view.MatchedGroups[2].Members)
	assert.Equal(t, Operation{Kind: OpSingleNew, Name: "Clickjacking", NewGroupID: -3}, s.OperationLog[0])
	assertInvariants(t, s)
}

func TestMergeMatchedGroups(t *testing.T) {
	s := testState()

	view, err := s.MergeMatchedGroups(5, 3)
	require.NoError(t, err)

	require.Len(t, view.MatchedGroups, 1)
	assert.Equal(t, 3, view.MatchedGroups[0].ID)
	assert.Equal(t, []string{"SQLi", "TLS 1.0", "SSLv3"}, view.MatchedGroups[0].Members)
	assertInvariants(t, s)
}

func TestMergeMatchedGroupsErrors(t *testing.T) {
	s := testState()
	before := s.Clone()

	_, err := s.MergeMatchedGroups(5, 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.MergeMatchedGroups(42, 5)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.MergeMatchedGroups(5, 5)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, before, s)
}

func TestUndoEmptyLog(t *testing.T) {
	s := testState()

	_, err := s.Undo()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyLog))

	var el *EmptyLogError
	assert.True(t, errors.As(err, &el))
}

func TestUndoRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *State)
		apply func(s *State) error
	}{
		{
			name: "merge with matched",
			apply: func(s *State) error {
				_, err := s.MergeWithMatched("Open Redirect", 5)
				return err
			},
		},
		{
			name: "merge with unmatched",
			apply: func(s *State) error {
				_, err := s.MergeWithUnmatched([]string{"Weak Cipher B", "Weak Cipher A", "Weak Cipher B"}, testDetails("Weak Ciphers"))
				return err
			},
		},
		{
			name: "add details",
			apply: func(s *State) error {
				_, err := s.AddDetails("Clickjacking", testDetails("Clickjacking"))
				return err
			},
		},
		{
			name: "merge matched groups",
			apply: func(s *State) error {
				_, err := s.MergeMatchedGroups(3, 5)
				return err
			},
		},
		{
			name: "merge session group into catalog group",
			setup: func(s *State) {
				_, _ = s.AddDetails("Clickjacking", testDetails("Clickjacking"))
			},
			apply: func(s *State) error {
				_, err := s.MergeMatchedGroups(-3, 3)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState()
			if tt.setup != nil {
				tt.setup(s)
			}
			before := s.Clone()

			require.NoError(t, tt.apply(s))
			assert.NotEqual(t, before, s)
			assertInvariants(t, s)

			_, err := s.Undo()
			require.NoError(t, err)
			assert.Equal(t, before, s)
			assertInvariants(t, s)
		})
	}
}

func TestUndoIsLIFO(t *testing.T) {
	s := testState()
	initial := s.Clone()

	_, err := s.MergeWithMatched("Clickjacking", 3)
	require.NoError(t, err)
	afterFirst := s.Clone()
	_, err = s.MergeWithUnmatched([]string{"Weak Cipher A", "Weak Cipher B"}, testDetails("Weak Ciphers"))
	require.NoError(t, err)
	afterSecond := s.Clone()
	_, err = s.MergeMatchedGroups(-3, 5)
	require.NoError(t, err)

	_, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, afterSecond, s)
	_, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, afterFirst, s)
	_, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, initial, s)

	_, err = s.Undo()
	assert.True(t, errors.Is(err, ErrEmptyLog))
}

func TestScenarioMergeUnmatchedThenUndo(t *testing.T) {
	s := NewState(&catalog.MatchResult{
		Groups:    []models.Group{},
		Unmatched: []string{"Weak Cipher A", "Weak Cipher B"},
	}, DefaultLimits())

	_, err := s.MergeWithUnmatched([]string{"Weak Cipher A", "Weak Cipher B"}, testDetails("Weak Ciphers"))
	require.NoError(t, err)
	assert.Equal(t, -1, s.MatchedGroups[0].ID)
	assert.Empty(t, s.Unmatched)

	view, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, []string{"Weak Cipher A", "Weak Cipher B"}, view.Unmatched)
	assert.Empty(t, view.MatchedGroups)
	assert.Empty(t, s.NewGroupDetails)
	assert.Empty(t, s.OperationLog)
}

func TestScenarioMergeGroupsThenUndo(t *testing.T) {
	s := testState()

	_, err := s.MergeMatchedGroups(5, 3)
	require.NoError(t, err)

	view, err := s.Undo()
	require.NoError(t, err)

	g5, ok := s.Group(5)
	require.True(t, ok)
	assert.Equal(t, []string{"TLS 1.0", "SSLv3"}, g5.Members)

	g3, ok := s.Group(3)
	require.True(t, ok)
	assert.Equal(t, []string{"SQLi"}, g3.Members)

	assert.Equal(t, []int{3, 5}, []int{view.MatchedGroups[0].ID, view.MatchedGroups[1].ID})
}

func TestUndoGroupMergeKeepsSharedTargetMembers(t *testing.T) {
	s := NewState(&catalog.MatchResult{
		Groups: []models.Group{
			{ID: 1, Name: "A", Members: []string{"x", "shared"}},
			{ID: 2, Name: "B", Members: []string{"shared", "y"}},
		},
	}, DefaultLimits())

	_, err := s.MergeMatchedGroups(2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "shared", "y"}, s.MatchedGroups[0].Members)

	_, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "shared"}, s.MatchedGroups[0].Members)
	assert.Equal(t, []string{"shared", "y"}, s.MatchedGroups[1].Members)
}

func TestStateJSONRoundTrip(t *testing.T) {
	s := testState()
	_, err := s.MergeWithUnmatched([]string{"Weak Cipher A", "Weak Cipher B"}, testDetails("Weak Ciphers"))
	require.NoError(t, err)
	_, err = s.MergeMatchedGroups(5, 3)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, &decoded)

	_, ok := decoded.NewGroupDetails[-3]
	assert.True(t, ok, "negative id must survive serialization")

	// The decoded state must still be undoable.
	_, err = decoded.Undo()
	require.NoError(t, err)
	_, err = decoded.Undo()
	require.NoError(t, err)
	assert.Equal(t, testState(), &decoded)
}

func TestFinalize(t *testing.T) {
	s := testState()
	_, err := s.AddDetails("Clickjacking", testDetails("UI Redressing"))
	require.NoError(t, err)

	rows := s.Finalize()
	require.Len(t, rows, 3)
	assert.Equal(t, "SQL Injection", rows[0].Name)
	assert.Nil(t, rows[0].Details)
	assert.Equal(t, "UI Redressing", rows[2].Name)
	require.NotNil(t, rows[2].Details)
	assert.Equal(t, "Disable weak ciphers.", rows[2].Details.Recommendation)

	groups := s.SessionGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Clickjacking"}, groups[0].Members)
	assert.Equal(t, 0, groups[0].ID)
}
