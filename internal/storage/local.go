package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/vulnrecon/internal/models"
)

const reportSuffix = "-report.json"

// LocalStorage implements Store with one JSON file per session and per
// archived report
type LocalStorage struct {
	baseDir string
}

// NewLocal creates a new local storage instance
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{
		baseDir: baseDir,
	}
}

// SaveSession writes the session to <base>/sessions/<id>.json
func (s *LocalStorage) SaveSession(ctx context.Context, sess *Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if err := validateID(sess.ID); err != nil {
		return err
	}

	dir := filepath.Join(s.baseDir, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write then rename so a crash never leaves a half-written session.
	path := s.sessionPath(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// LoadSession reads a session back from disk
func (s *LocalStorage) LoadSession(ctx context.Context, id string) (*Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// DeleteSession removes the session file
func (s *LocalStorage) DeleteSession(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns every readable session, oldest first
func (s *LocalStorage) ListSessions(ctx context.Context) ([]Summary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.baseDir, "sessions")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []Summary{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.LoadSession(ctx, id)
		if err != nil {
			// Skip sessions that fail to load but continue with others
			continue
		}
		summaries = append(summaries, sess.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// SaveReport stores a finalized audit under <base>/reports
func (s *LocalStorage) SaveReport(ctx context.Context, r *models.AuditReport) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}

	dir := filepath.Join(s.baseDir, "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, formatTimestamp(r.Timestamp)+reportSuffix)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LatestReport loads the most recent archived report
func (s *LocalStorage) LatestReport(ctx context.Context) (*models.AuditReport, error) {
	files, err := s.reportFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoReports
	}

	path := filepath.Join(s.baseDir, "reports", files[len(files)-1].name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var report models.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// ListReports returns archived report timestamps sorted chronologically
func (s *LocalStorage) ListReports(ctx context.Context) ([]time.Time, error) {
	files, err := s.reportFiles(ctx)
	if err != nil {
		return nil, err
	}
	timestamps := make([]time.Time, len(files))
	for i, f := range files {
		timestamps[i] = f.timestamp
	}
	return timestamps, nil
}

type reportFile struct {
	name      string
	timestamp time.Time
}

// reportFiles lists archived reports oldest first. Equal timestamps keep
// file name order.
func (s *LocalStorage) reportFiles(ctx context.Context) ([]reportFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.baseDir, "reports")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var files []reportFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), reportSuffix) {
			continue
		}
		// Format: 2006-01-02T15-04-05.000000000-report.json
		ts, err := parseTimestamp(strings.TrimSuffix(entry.Name(), reportSuffix))
		if err != nil {
			continue
		}
		files = append(files, reportFile{name: entry.Name(), timestamp: ts})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].timestamp.Before(files[j].timestamp)
	})
	return files, nil
}

// Close is a no-op for file storage
func (s *LocalStorage) Close() error {
	return nil
}

// GetStoragePath returns the full path to the storage directory
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

func (s *LocalStorage) sessionPath(id string) string {
	return filepath.Join(s.baseDir, "sessions", filepath.Base(id)+".json")
}

const (
	reportTimeLayout = "2006-01-02T15-04-05.000000000"

	// Reports archived before sub-second names were used.
	legacyReportTimeLayout = "2006-01-02T15-04-05"
)

// formatTimestamp converts a time.Time to filename-safe format. Names sort
// in time order and two reports finalized in the same second stay apart.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(reportTimeLayout)
}

// parseTimestamp converts filename format back to time.Time
func parseTimestamp(str string) (time.Time, error) {
	if ts, err := time.Parse(reportTimeLayout, str); err == nil {
		return ts, nil
	}
	return time.Parse(legacyReportTimeLayout, str)
}
