package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/vulnrecon/internal/apiclient"
	"github.com/ppiankov/vulnrecon/internal/config"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/session"
	"github.com/ppiankov/vulnrecon/internal/storage"
	"github.com/ppiankov/vulnrecon/internal/tui"
)

// curator is everything the session commands need. The local manager and
// the remote client both provide it.
type curator interface {
	tui.Curator
	Get(ctx context.Context, id string) (*storage.Session, error)
	List(ctx context.Context) ([]storage.Summary, error)
	Delete(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, keep bool) (*models.AuditReport, error)
	LatestReport(ctx context.Context) (*models.AuditReport, error)
}

var (
	_ curator = (*session.Manager)(nil)
	_ curator = (*apiclient.Client)(nil)
)

// backend is an open curator plus the cleanup for it.
type backend struct {
	curator curator

	// Exactly one of manager and client is set.
	manager *session.Manager
	client  *apiclient.Client
	close   func() error
}

// openBackend picks the remote client when a server URL is configured and
// the local store otherwise.
func openBackend(c *config.Config) (*backend, error) {
	if c.ServerURL != "" {
		logDebug("Using remote server %s", c.ServerURL)
		client := apiclient.New(c.ServerURL)
		return &backend{
			curator: client,
			client:  client,
			close:   func() error { return nil },
		}, nil
	}

	manager, store, err := openManager(c)
	if err != nil {
		return nil, err
	}
	return &backend{curator: manager, manager: manager, close: store.Close}, nil
}

// openManager opens the configured local store.
func openManager(c *config.Config) (*session.Manager, storage.Store, error) {
	dir, err := c.GetStoragePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(c.SessionBackend, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	logDebug("Session store: %s (%s)", dir, c.SessionBackend)
	return session.NewManager(store, c.Limits()), store, nil
}

func (b *backend) Close() {
	if err := b.close(); err != nil {
		logError("failed to close session store: %v", err)
	}
}

// resolveSessionID returns id, or the most recently updated session when id
// is empty.
func resolveSessionID(ctx context.Context, c curator, id string) (string, error) {
	if id != "" {
		return id, nil
	}

	list, err := c.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(list) == 0 {
		return "", &ValidationError{Message: "no sessions found (run 'vulnrecon match' first)"}
	}

	latest := list[0]
	for _, s := range list[1:] {
		if s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	logVerbose("Using session %s", latest.ID)
	return latest.ID, nil
}

// loadSession resolves and fetches a session.
func loadSession(ctx context.Context, c curator, id string) (*storage.Session, error) {
	id, err := resolveSessionID(ctx, c, id)
	if err != nil {
		return nil, err
	}
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == nil {
		return nil, fmt.Errorf("session %s has no state", id)
	}
	return sess, nil
}

// viewOutput is the JSON shape of a session view.
type viewOutput struct {
	SessionID string `json:"session_id"`
	Undoable  int    `json:"undoable"`
	*reconcile.View
}
