package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// Config holds configuration for the collector
type Config struct {
	MaxConcurrency int
	Timeout        time.Duration

	// OnFile is called once per processed file from a single goroutine.
	OnFile func(path string, err error)
}

// Collector reads scan exports from many files concurrently
type Collector struct {
	config Config
}

// New creates a new collector with the given configuration
func New(config Config) *Collector {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	return &Collector{
		config: config,
	}
}

// ExpandPaths resolves files and directories into a de-duplicated, sorted
// list of scan files. Directories are walked recursively for .json and .csv.
func ExpandPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input paths given")
	}

	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		files = append(files, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !isSupportedExt(path) {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no scan files found in: %v", paths)
	}
	sort.Strings(files)
	return files, nil
}

// CollectFromPaths parses every scan file under paths. Findings are returned
// in file order, then row order. Files that fail are logged and skipped; an
// error is returned only when nothing could be read.
func (c *Collector) CollectFromPaths(ctx context.Context, paths []string) ([]models.Finding, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	slog.Debug("collecting scan files", "count", len(files))

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collection interrupted: %w", err)
	}

	return c.collectFiles(ctx, files)
}

// collectResult holds the result of processing a single file
type collectResult struct {
	index    int
	file     string
	findings []models.Finding
	err      error
}

type job struct {
	index int
	file  string
}

// collectFiles processes files concurrently using a worker pool
func (c *Collector) collectFiles(ctx context.Context, files []string) ([]models.Finding, error) {
	jobCh := make(chan job, len(files))
	resultCh := make(chan *collectResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < c.config.MaxConcurrency; i++ {
		wg.Add(1)
		go c.worker(ctx, &wg, jobCh, resultCh)
	}

	go func() {
		defer close(jobCh)
		for i, file := range files {
			select {
			case jobCh <- job{index: i, file: file}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	perFile := make([][]models.Finding, len(files))
	var failed, succeeded int

	for result := range resultCh {
		if c.config.OnFile != nil {
			c.config.OnFile(result.file, result.err)
		}
		if result.err != nil {
			failed++
			slog.Warn("failed to process scan file", "file", result.file, "error", result.err)
			continue
		}
		succeeded++
		perFile[result.index] = result.findings
		slog.Debug("collected scan file", "file", filepath.Base(result.file), "findings", len(result.findings))
	}

	if err := ctx.Err(); err != nil && succeeded+failed < len(files) {
		return nil, fmt.Errorf("collection interrupted: %w", err)
	}

	// Return partial results even if some files failed
	if failed > 0 && succeeded == 0 {
		return nil, fmt.Errorf("all files failed to process (%d errors)", failed)
	}
	if failed > 0 {
		slog.Warn("some scan files failed to process", "failed", failed, "succeeded", succeeded)
	}

	var findings []models.Finding
	for _, f := range perFile {
		findings = append(findings, f...)
	}
	return findings, nil
}

// worker processes files from the work channel
func (c *Collector) worker(ctx context.Context, wg *sync.WaitGroup, jobCh <-chan job, resultCh chan<- *collectResult) {
	defer wg.Done()

	for {
		select {
		case j, ok := <-jobCh:
			if !ok {
				return
			}
			findings, err := ProcessFile(j.file)
			resultCh <- &collectResult{
				index:    j.index,
				file:     j.file,
				findings: findings,
				err:      err,
			}

		case <-ctx.Done():
			return
		}
	}
}

// ProcessFile reads and parses a single scan export
func ProcessFile(path string) ([]models.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	format, err := DetectFormat(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to detect format: %w", err)
	}

	findings, err := ParseFindings(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return findings, nil
}
