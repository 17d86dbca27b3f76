package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/vulnrecon/internal/api"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

// Client drives curation sessions held by a remote vulnrecon server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates an API client. Returns nil if baseURL is empty.
func New(baseURL string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, http.StatusOK, nil)
}

// CreateSession matches names against the server's catalog and opens a session.
func (c *Client) CreateSession(ctx context.Context, names []string) (*api.SessionResponse, error) {
	if err := api.ValidateNames(names); err != nil {
		return nil, &reconcile.ValidationError{Message: err.Error()}
	}
	var out api.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Names: names}, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the full session.
func (c *Client) Get(ctx context.Context, id string) (*storage.Session, error) {
	var out storage.Session
	if err := c.sessionCall(ctx, http.MethodGet, id, "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns summaries of every session on the server.
func (c *Client) List(ctx context.Context) ([]storage.Summary, error) {
	var out []storage.Summary
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete discards a session.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.sessionCall(ctx, http.MethodDelete, id, "", nil, http.StatusNoContent, nil)
}

// MergeWithMatched moves an unmatched finding into a group.
func (c *Client) MergeWithMatched(ctx context.Context, id, name string, targetID int) (*reconcile.View, error) {
	return c.view(ctx, id, "/merge-matched", api.MergeWithMatchedRequest{Name: name, TargetGroupID: targetID})
}

// MergeWithUnmatched creates a session group from several unmatched findings.
func (c *Client) MergeWithUnmatched(ctx context.Context, id string, names []string, details models.Details) (*reconcile.View, error) {
	return c.view(ctx, id, "/merge-unmatched", api.MergeWithUnmatchedRequest{Names: names, Details: details})
}

// AddDetails promotes one unmatched finding to its own group.
func (c *Client) AddDetails(ctx context.Context, id, name string, details models.Details) (*reconcile.View, error) {
	return c.view(ctx, id, "/details", api.AddDetailsRequest{Name: name, Details: details})
}

// MergeMatchedGroups folds one group into another.
func (c *Client) MergeMatchedGroups(ctx context.Context, id string, sourceID, targetID int) (*reconcile.View, error) {
	return c.view(ctx, id, "/merge-groups", api.MergeGroupsRequest{SourceGroupID: sourceID, TargetGroupID: targetID})
}

// Undo reverses the last operation on the session.
func (c *Client) Undo(ctx context.Context, id string) (*reconcile.View, error) {
	return c.view(ctx, id, "/undo", nil)
}

// Finalize returns the audit report. The server discards the session unless
// keep is set.
func (c *Client) Finalize(ctx context.Context, id string, keep bool) (*models.AuditReport, error) {
	var out models.AuditReport
	if err := c.sessionCall(ctx, http.MethodPost, id, "/finalize", api.FinalizeRequest{Keep: keep}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestReport returns the newest audit archived on the server. It wraps
// storage.ErrNoReports when the server has none.
func (c *Client) LatestReport(ctx context.Context) (*models.AuditReport, error) {
	var out models.AuditReport
	if err := c.do(ctx, http.MethodGet, "/v1/reports/latest", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) view(ctx context.Context, id, suffix string, body any) (*reconcile.View, error) {
	var out reconcile.View
	if err := c.sessionCall(ctx, http.MethodPost, id, suffix, body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) sessionCall(ctx context.Context, method, id, suffix string, body any, want int, out any) error {
	if err := api.ValidateSessionID(id); err != nil {
		return &reconcile.ValidationError{Message: err.Error()}
	}
	return c.do(ctx, method, "/v1/sessions/"+id+suffix, body, want, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	if c == nil {
		return fmt.Errorf("no server configured")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response back into the reconcile error it came
// from, so callers can use errors.Is the same way as with a local session.
func decodeError(resp *http.Response) error {
	var body api.ErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnprocessableEntity:
		return &reconcile.ValidationError{Message: msg}
	case http.StatusNotFound:
		if body.Code == api.CodeNoReports {
			return fmt.Errorf("%s: %w", msg, storage.ErrNoReports)
		}
		return fmt.Errorf("%s: %w", msg, reconcile.ErrNotFound)
	case http.StatusConflict:
		return &reconcile.EmptyLogError{}
	default:
		return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, msg)
	}
}
