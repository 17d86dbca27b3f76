package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
)

// ErrSessionNotFound is returned when no session is stored under an id
var ErrSessionNotFound = errors.New("session not found")

// ErrNoReports is returned by LatestReport before any audit was archived
var ErrNoReports = errors.New("no reports found")

// Session is one persisted curation session
type Session struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CatalogPath string           `json:"catalog_path,omitempty"`
	Sources     []string         `json:"sources,omitempty"`
	State       *reconcile.State `json:"state"`
}

// Summary is the listing view of a stored session
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Groups    int       `json:"groups"`
	Unmatched int       `json:"unmatched"`
	Undoable  int       `json:"undoable"`
}

// Summarize builds the listing view of s.
func (s *Session) Summarize() Summary {
	sum := Summary{ID: s.ID, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
	if s.State != nil {
		sum.Groups = len(s.State.MatchedGroups)
		sum.Unmatched = len(s.State.Unmatched)
		sum.Undoable = len(s.State.OperationLog)
	}
	return sum
}

// Store persists sessions and finalized audit reports
type Store interface {
	// SaveSession creates or replaces a session
	SaveSession(ctx context.Context, s *Session) error

	// LoadSession returns the session stored under id
	LoadSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession removes a session; missing ids are not an error
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns stored sessions, oldest first
	ListSessions(ctx context.Context) ([]Summary, error)

	// SaveReport archives a finalized audit
	SaveReport(ctx context.Context, r *models.AuditReport) error

	// LatestReport returns the most recent archived audit
	LatestReport(ctx context.Context) (*models.AuditReport, error)

	// ListReports returns archived audit timestamps, oldest first
	ListReports(ctx context.Context) ([]time.Time, error)

	Close() error
}

// Backend names accepted by Open
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewLocal(dir), nil
	case BackendSQLite:
		return NewSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown session backend %q (expected %s or %s)", backend, BackendJSON, BackendSQLite)
	}
}

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	return ctx.Err()
}

func validateID(id string) error {
	if id == "" {
		return errors.New("session ID is required")
	}
	return nil
}
