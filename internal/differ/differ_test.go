package differ

import (
	"strings"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffLabelsEachName(t *testing.T) {
	r := Diff([]string{"Y", "Z"}, []string{"X", "Y"})

	assert.Equal(t, models.StatusClosed, r.Label("X"))
	assert.Equal(t, models.StatusOpen, r.Label("Y"))
	assert.Equal(t, models.StatusNew, r.Label("Z"))
	assert.Equal(t, models.StatusUnknown, r.Label("W"))
	assert.Equal(t, Counts{New: 1, Open: 1, Closed: 1}, r.Counts())
}

func TestDiffSetsAreSortedAndDisjoint(t *testing.T) {
	current := []string{"c", "a", "b", "a", "e"}
	previous := []string{"d", "b", "f", "b"}

	r := Diff(current, previous)

	assert.Equal(t, []string{"a", "c", "e"}, r.New)
	assert.Equal(t, []string{"b"}, r.Open)
	assert.Equal(t, []string{"d", "f"}, r.Closed)

	seen := map[string]int{}
	for _, set := range [][]string{r.New, r.Open, r.Closed} {
		for _, n := range set {
			seen[n]++
		}
	}
	for _, n := range append(current, previous...) {
		assert.Equal(t, 1, seen[n], "%q should appear in exactly one set", n)
	}
}

func TestDiffEmptyInputs(t *testing.T) {
	tests := []struct {
		name     string
		current  []string
		previous []string
		want     Counts
	}{
		{name: "both empty", want: Counts{}},
		{name: "first audit", current: []string{"a", "b"}, want: Counts{New: 2}},
		{name: "everything fixed", previous: []string{"a"}, want: Counts{Closed: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Diff(tt.current, tt.previous)
			assert.Equal(t, tt.want, r.Counts())
			assert.NotNil(t, r.New)
			assert.NotNil(t, r.Open)
			assert.NotNil(t, r.Closed)
		})
	}
}

func TestLabelFallsBackToPrefix(t *testing.T) {
	long := strings.Repeat("é", NamePrefixLen) + " (tail added by a later scanner)"
	r := Diff([]string{long}, nil)

	assert.Equal(t, models.StatusNew, r.Label(long))
	assert.Equal(t, models.StatusNew, r.Label(TruncateName(long)))
	assert.Equal(t, models.StatusNew, r.Label(TruncateName(long)+" something else"))
	assert.Equal(t, models.StatusUnknown, r.Label(strings.Repeat("é", 10)))
}

func TestLabelPrefersFullName(t *testing.T) {
	base := strings.Repeat("a", NamePrefixLen)
	open := base + "-open"
	closed := base + "-closed"

	r := Diff([]string{open}, []string{open, closed})

	assert.Equal(t, models.StatusOpen, r.Label(open))
	assert.Equal(t, models.StatusClosed, r.Label(closed))
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "short", TruncateName("short"))

	long := strings.Repeat("ж", NamePrefixLen+5)
	got := TruncateName(long)
	assert.Equal(t, NamePrefixLen, len([]rune(got)))
	assert.True(t, strings.HasPrefix(long, got))
}

func TestNames(t *testing.T) {
	r := Diff([]string{"Y", "Z"}, []string{"X", "Y"})

	assert.Equal(t, []string{"Z"}, r.Names(models.StatusNew))
	assert.Equal(t, []string{"Y"}, r.Names(models.StatusOpen))
	assert.Equal(t, []string{"X"}, r.Names(models.StatusClosed))
	assert.Nil(t, r.Names(models.StatusUnknown))
}

func TestApplyExceptions(t *testing.T) {
	r := Diff([]string{"Y", "Z"}, []string{"X", "Y", "W"})

	labels := ApplyExceptions(r, []string{"X", "Y", "missing"})

	assert.Equal(t, models.StatusClosedWithException, labels["X"])
	assert.Equal(t, models.StatusOpen, labels["Y"], "only Closed names take an exception")
	assert.Equal(t, models.StatusClosed, labels["W"])
	assert.Equal(t, models.StatusNew, labels["Z"])
	assert.NotContains(t, labels, "missing")
}

func TestSummarize(t *testing.T) {
	r := Diff([]string{"Y", "Z"}, []string{"X", "Y", "W"})
	labels := ApplyExceptions(r, []string{"W"})

	risks := map[string]string{
		"X": "Critical",
		"Y": "High",
		"Z": "Medium",
		"W": "Low",
	}

	b := Summarize(labels, risks)
	require.Equal(t, 1, b.New.Medium)
	assert.Equal(t, 1, b.Open.High)
	assert.Equal(t, 1, b.Closed.Critical)
	assert.Equal(t, 1, b.Closed.Low, "exceptions count as closed")
	assert.Equal(t, 1, b.ClosedWithException.Low)
	assert.Equal(t, 2, b.Closed.Total())
}

func TestNewReport(t *testing.T) {
	r := Diff([]string{"Y", "Z"}, []string{"X", "Y", "W"})

	rep := NewReport(r, []string{"W"}, map[string]string{"X": "High", "W": "Low", "Y": "Critical", "Z": "Medium"})

	assert.Equal(t, Counts{New: 1, Open: 1, Closed: 2}, rep.Counts)
	assert.Equal(t, []string{"W", "X"}, rep.Closed)
	assert.Equal(t, []string{"W"}, rep.ClosedWithException)
	assert.Equal(t, 1, rep.Breakdown.Open.Critical)
	assert.Equal(t, 2, rep.Breakdown.Closed.Total())
}

func TestLabelRows(t *testing.T) {
	long := strings.Repeat("n", NamePrefixLen+10)
	r := Diff([]string{"Y", long}, []string{"Y"})

	rows := LabelRows(r, []models.ReportRow{
		{Name: "Y"},
		{Name: long},
		{Name: "never seen"},
	}, nil)

	assert.Equal(t, models.StatusOpen, rows[0].Status)
	assert.Equal(t, models.StatusNew, rows[1].Status)
	assert.Equal(t, models.StatusUnknown, rows[2].Status)
}

func TestClosedRows(t *testing.T) {
	r := Diff([]string{"Y"}, []string{"X", "Y", "W"})
	prev := []models.PreviousFinding{
		{Name: "X", Risk: "High"},
		{Name: "Y", Risk: "Low"},
		{Name: "W", Risk: "Low"},
		{Name: "X", Risk: "High"},
	}

	rows := ClosedRows(r, prev, []string{"W"})
	assert.Equal(t, []models.ReportRow{
		{Name: "X", Risk: "High", Status: models.StatusClosed},
		{Name: "W", Risk: "Low", Status: models.StatusClosedWithException},
	}, rows)
}
