// Package differ compares the finalized names of the current audit with the
// names of a previous audit and labels each one New, Open or Closed.
package differ

import (
	"sort"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// NamePrefixLen is the rune length used when a label lookup by full name
// misses. Prior reports truncated long finding names to this length.
const NamePrefixLen = 170

// Result holds the three status sets and a lookup that also accepts
// truncated names.
type Result struct {
	Open   []string `json:"open"`
	Closed []string `json:"closed"`
	New    []string `json:"new"`

	labels   map[string]models.AuditStatus
	prefixes map[string]models.AuditStatus
}

// Counts is the size of each status set.
type Counts struct {
	New    int `json:"new"`
	Open   int `json:"open"`
	Closed int `json:"closed"`
}

// Diff labels every name from current and previous. Inputs are de-duplicated;
// the output sets are sorted and pairwise disjoint.
func Diff(current, previous []string) *Result {
	curr := toSet(current)
	prev := toSet(previous)

	r := &Result{
		Open:   []string{},
		Closed: []string{},
		New:    []string{},
	}

	for name := range curr {
		if _, found := prev[name]; found {
			r.Open = append(r.Open, name)
		} else {
			r.New = append(r.New, name)
		}
	}
	for name := range prev {
		if _, found := curr[name]; !found {
			r.Closed = append(r.Closed, name)
		}
	}

	sort.Strings(r.Open)
	sort.Strings(r.Closed)
	sort.Strings(r.New)
	r.index()
	return r
}

func (r *Result) index() {
	r.labels = make(map[string]models.AuditStatus, len(r.Open)+len(r.Closed)+len(r.New))
	r.prefixes = make(map[string]models.AuditStatus, len(r.labels))

	add := func(names []string, status models.AuditStatus) {
		for _, n := range names {
			r.labels[n] = status
			p := TruncateName(n)
			if _, taken := r.prefixes[p]; !taken {
				r.prefixes[p] = status
			}
		}
	}
	add(r.Open, models.StatusOpen)
	add(r.Closed, models.StatusClosed)
	add(r.New, models.StatusNew)
}

// Label returns the status for name, trying the full name, then its
// truncated prefix. Names seen in neither audit are Unknown.
func (r *Result) Label(name string) models.AuditStatus {
	if r.labels == nil {
		r.index()
	}
	if s, ok := r.labels[name]; ok {
		return s
	}
	if s, ok := r.prefixes[TruncateName(name)]; ok {
		return s
	}
	return models.StatusUnknown
}

// Names returns the sorted names carrying status.
func (r *Result) Names(status models.AuditStatus) []string {
	switch status {
	case models.StatusOpen:
		return r.Open
	case models.StatusClosed:
		return r.Closed
	case models.StatusNew:
		return r.New
	default:
		return nil
	}
}

// Counts returns the size of each status set.
func (r *Result) Counts() Counts {
	return Counts{New: len(r.New), Open: len(r.Open), Closed: len(r.Closed)}
}

// Labels returns every name with its status.
func (r *Result) Labels() map[string]models.AuditStatus {
	out := make(map[string]models.AuditStatus, len(r.Open)+len(r.Closed)+len(r.New))
	for _, n := range r.Open {
		out[n] = models.StatusOpen
	}
	for _, n := range r.Closed {
		out[n] = models.StatusClosed
	}
	for _, n := range r.New {
		out[n] = models.StatusNew
	}
	return out
}

// ApplyExceptions relabels Closed names that appear in exceptions as
// Closed With Exception. Other statuses are untouched.
func ApplyExceptions(r *Result, exceptions []string) map[string]models.AuditStatus {
	labels := r.Labels()
	for _, name := range exceptions {
		if labels[name] == models.StatusClosed {
			labels[name] = models.StatusClosedWithException
		}
	}
	return labels
}

// Summarize counts each status set by risk. risks maps a name to its risk
// text; names without a classifiable risk are skipped.
func Summarize(labels map[string]models.AuditStatus, risks map[string]string) aggregator.StatusBreakdown {
	return aggregator.BreakdownByStatus(labels, risks)
}

// TruncateName returns the first NamePrefixLen runes of name.
func TruncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= NamePrefixLen {
		return name
	}
	return string(runes[:NamePrefixLen])
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
