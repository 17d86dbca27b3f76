// Package session ties reconciliation state to a persistent store. Mutations
// on one session are serialized; different sessions proceed in parallel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

// Manager creates, mutates and finalizes sessions held in a Store
type Manager struct {
	store  storage.Store
	limits reconcile.Limits
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a Manager backed by store.
func NewManager(store storage.Store, limits reconcile.Limits) *Manager {
	return &Manager{
		store:  store,
		limits: limits,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Create seeds a new session from a match result and persists it.
func (m *Manager) Create(ctx context.Context, result *catalog.MatchResult, catalogPath string, sources []string) (*storage.Session, error) {
	now := m.now().UTC()
	sess := &storage.Session{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
		CatalogPath: catalogPath,
		Sources:     sources,
		State:       reconcile.NewState(result, m.limits),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("session created",
		"session", sess.ID,
		"groups", len(sess.State.MatchedGroups),
		"unmatched", len(sess.State.Unmatched))
	return sess, nil
}

// Get returns a snapshot of the session. It does not take the session lock;
// the store always holds the last fully applied state.
func (m *Manager) Get(ctx context.Context, id string) (*storage.Session, error) {
	return m.store.LoadSession(ctx, id)
}

// List returns stored sessions, oldest first.
func (m *Manager) List(ctx context.Context) ([]storage.Summary, error) {
	return m.store.ListSessions(ctx)
}

// Delete discards a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	lock := m.lock(id)
	lock.Lock()
	defer lock.Unlock()
	defer m.forget(id)

	return m.store.DeleteSession(ctx, id)
}

// LatestReport returns the most recently archived audit, or
// storage.ErrNoReports when nothing was finalized yet.
func (m *Manager) LatestReport(ctx context.Context) (*models.AuditReport, error) {
	return m.store.LatestReport(ctx)
}

// Apply runs op against the session under its lock and persists the result.
// When op fails nothing is written.
func (m *Manager) Apply(ctx context.Context, id string, op func(*reconcile.State) (*reconcile.View, error)) (*reconcile.View, error) {
	lock := m.lock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == nil {
		return nil, fmt.Errorf("session %s has no state", id)
	}

	view, err := op(sess.State)
	if err != nil {
		return nil, err
	}

	sess.UpdatedAt = m.now().UTC()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", id, err)
	}
	return view, nil
}

// MergeWithMatched moves an unmatched finding into a group.
func (m *Manager) MergeWithMatched(ctx context.Context, id, name string, targetID int) (*reconcile.View, error) {
	return m.Apply(ctx, id, func(s *reconcile.State) (*reconcile.View, error) {
		return s.MergeWithMatched(name, targetID)
	})
}

// MergeWithUnmatched creates a session group from several unmatched findings.
func (m *Manager) MergeWithUnmatched(ctx context.Context, id string, names []string, details models.Details) (*reconcile.View, error) {
	return m.Apply(ctx, id, func(s *reconcile.State) (*reconcile.View, error) {
		return s.MergeWithUnmatched(names, details)
	})
}

// AddDetails promotes one unmatched finding to its own group.
func (m *Manager) AddDetails(ctx context.Context, id, name string, details models.Details) (*reconcile.View, error) {
	return m.Apply(ctx, id, func(s *reconcile.State) (*reconcile.View, error) {
		return s.AddDetails(name, details)
	})
}

// MergeMatchedGroups folds one group into another.
func (m *Manager) MergeMatchedGroups(ctx context.Context, id string, sourceID, targetID int) (*reconcile.View, error) {
	return m.Apply(ctx, id, func(s *reconcile.State) (*reconcile.View, error) {
		return s.MergeMatchedGroups(sourceID, targetID)
	})
}

// Undo reverses the last operation on the session.
func (m *Manager) Undo(ctx context.Context, id string) (*reconcile.View, error) {
	return m.Apply(ctx, id, func(s *reconcile.State) (*reconcile.View, error) {
		return s.Undo()
	})
}

// Finalize produces the audit report, archives it for the next diff, and
// discards the session unless keep is set.
func (m *Manager) Finalize(ctx context.Context, id string, keep bool) (*models.AuditReport, error) {
	lock := m.lock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == nil {
		return nil, fmt.Errorf("session %s has no state", id)
	}

	report := &models.AuditReport{
		Timestamp: m.now().UTC(),
		SessionID: id,
		Rows:      sess.State.Finalize(),
		Unmatched: slices.Clone(sess.State.Unmatched),
	}
	if dups := report.DuplicateNames(); len(dups) > 0 {
		slog.Warn("report rows share a name and will diff as one finding",
			"session", id, "names", strings.Join(dups, ", "))
	}
	if err := m.store.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to archive report: %w", err)
	}

	if !keep {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			return nil, err
		}
		m.forget(id)
		slog.Info("session finalized and discarded", "session", id,
			"rows", len(report.Rows), "unmatched", len(report.Unmatched))
	}
	return report, nil
}

func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// forget drops the lock entry of a discarded session. The caller holds it.
func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
}
