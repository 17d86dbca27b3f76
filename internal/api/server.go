package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/session"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

// Error codes carried in the "code" field of error bodies
const (
	codeBadRequest  = "bad_request"
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeEmptyLog    = "empty_log"
	codeTooLarge    = "payload_too_large"
	codeRateLimited = "rate_limited"
	codeInternal    = "internal_error"
)

// CodeNoReports marks a 404 caused by an empty report archive rather than
// a missing route or session.
const CodeNoReports = "no_reports"

// ErrorBody is the JSON body of every non-2xx response
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Config holds server settings
type Config struct {
	CatalogPath    string
	BodyLimitBytes int64
	RateLimit      int
	RateWindow     time.Duration
}

// Server exposes curation sessions over HTTP
type Server struct {
	manager *session.Manager
	config  Config
	handler http.Handler
}

// NewServer wires routes and middleware around manager.
func NewServer(manager *session.Manager, config Config) *Server {
	s := &Server{manager: manager, config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/merge-matched", s.handleMergeWithMatched)
	mux.HandleFunc("POST /v1/sessions/{id}/merge-unmatched", s.handleMergeWithUnmatched)
	mux.HandleFunc("POST /v1/sessions/{id}/details", s.handleAddDetails)
	mux.HandleFunc("POST /v1/sessions/{id}/merge-groups", s.handleMergeGroups)
	mux.HandleFunc("POST /v1/sessions/{id}/undo", s.handleUndo)
	mux.HandleFunc("POST /v1/sessions/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("GET /v1/reports/latest", s.handleLatestReport)
	mux.HandleFunc("POST /v1/risk", s.handleRisk)
	mux.HandleFunc("POST /v1/diff", s.handleDiff)

	s.handler = Chain(mux,
		RequestLog,
		SecurityHeaders,
		RateLimitPerIP(config.RateLimit, config.RateWindow),
		BodySizeLimit(config.BodyLimitBytes),
	)
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Request bodies

// CreateSessionRequest seeds a session from raw finding names.
type CreateSessionRequest struct {
	Names    []string         `json:"names"`
	Findings []models.Finding `json:"findings"`
}

// SessionResponse is returned by session creation.
type SessionResponse struct {
	ID   string          `json:"id"`
	View *reconcile.View `json:"view"`
}

// MergeWithMatchedRequest is the body of merge-matched.
type MergeWithMatchedRequest struct {
	Name          string `json:"name"`
	TargetGroupID int    `json:"target_group_id"`
}

// MergeWithUnmatchedRequest is the body of merge-unmatched.
type MergeWithUnmatchedRequest struct {
	Names   []string       `json:"names"`
	Details models.Details `json:"details"`
}

// AddDetailsRequest is the body of details.
type AddDetailsRequest struct {
	Name    string         `json:"name"`
	Details models.Details `json:"details"`
}

// MergeGroupsRequest is the body of merge-groups.
type MergeGroupsRequest struct {
	SourceGroupID int `json:"source_group_id"`
	TargetGroupID int `json:"target_group_id"`
}

// FinalizeRequest is the body of finalize.
type FinalizeRequest struct {
	Keep bool `json:"keep"`
}

// RiskRequest is the body of risk.
type RiskRequest struct {
	Risks []string `json:"risks"`
}

// DiffRequest is the body of diff.
type DiffRequest struct {
	Current    []string          `json:"current"`
	Previous   []string          `json:"previous"`
	Exceptions []string          `json:"exceptions"`
	Risks      map[string]string `json:"risks"`
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}

	names := req.Names
	for _, f := range req.Findings {
		names = append(names, f.Name)
	}
	if err := ValidateNames(names); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}

	groups, err := s.loadCatalog()
	if err != nil {
		writeError(w, err)
		return
	}

	result := catalog.Match(names, groups)
	sess, err := s.manager.Create(r.Context(), result, s.config.CatalogPath, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: sess.ID, View: sess.State.View()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := s.manager.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMergeWithMatched(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req MergeWithMatchedRequest
	if !decode(w, r, &req) {
		return
	}
	if err := ValidateName(req.Name); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	view, err := s.manager.MergeWithMatched(r.Context(), id, req.Name, req.TargetGroupID)
	writeView(w, view, err)
}

func (s *Server) handleMergeWithUnmatched(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req MergeWithUnmatchedRequest
	if !decode(w, r, &req) {
		return
	}
	if err := errors.Join(ValidateNames(req.Names), ValidateDetails(req.Details)); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	view, err := s.manager.MergeWithUnmatched(r.Context(), id, req.Names, req.Details)
	writeView(w, view, err)
}

func (s *Server) handleAddDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req AddDetailsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := errors.Join(ValidateName(req.Name), ValidateDetails(req.Details)); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	view, err := s.manager.AddDetails(r.Context(), id, req.Name, req.Details)
	writeView(w, view, err)
}

func (s *Server) handleMergeGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req MergeGroupsRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := s.manager.MergeMatchedGroups(r.Context(), id, req.SourceGroupID, req.TargetGroupID)
	writeView(w, view, err)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := s.manager.Undo(r.Context(), id)
	writeView(w, view, err)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req FinalizeRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	report, err := s.manager.Finalize(r.Context(), id, req.Keep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.LatestReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req RiskRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, aggregator.CountByRisk(req.Risks))
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if !decode(w, r, &req) {
		return
	}
	if err := errors.Join(ValidateNames(req.Current), ValidateNames(req.Previous)); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	result := differ.Diff(req.Current, req.Previous)
	writeJSON(w, http.StatusOK, differ.NewReport(result, req.Exceptions, req.Risks))
}

// Helpers

func (s *Server) loadCatalog() ([]models.CatalogGroup, error) {
	if s.config.CatalogPath == "" {
		return nil, nil
	}
	groups, err := catalog.Load(s.config.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return groups, nil
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeJSONError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// decode reads a JSON body into v, writing the error response on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeJSONError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, codeBadRequest, "request body is required")
		default:
			writeJSONError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

func writeView(w http.ResponseWriter, view *reconcile.View, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StatusFor maps an error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		return http.StatusUnprocessableEntity, codeValidation
	case errors.Is(err, reconcile.ErrNotFound), errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, reconcile.ErrEmptyLog):
		return http.StatusConflict, codeEmptyLog
	case errors.Is(err, storage.ErrNoReports):
		return http.StatusNotFound, CodeNoReports
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSONError(w, status, code, msg)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
