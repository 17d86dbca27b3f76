package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout of a catalog
type File struct {
	Version string                `yaml:"version,omitempty"`
	Groups  []models.CatalogGroup `yaml:"groups"`
}

var csvHeader = []string{
	"id", "name", "risk", "cvss", "observation", "impact", "recommendation", "reference", "members",
}

// Load reads a catalog table from a YAML or CSV file.
// Groups without an explicit ID get one from their 1-based row order.
func Load(path string) ([]models.CatalogGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	var groups []models.CatalogGroup
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		groups, err = decodeYAML(f)
	case ".csv":
		groups, err = decodeCSV(f)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (use .yaml, .yml or .csv)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if err := assignIDs(groups); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return groups, nil
}

func decodeYAML(r io.Reader) ([]models.CatalogGroup, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return []models.CatalogGroup{}, nil
		}
		return nil, err
	}
	return file.Groups, nil
}

func decodeCSV(r io.Reader) ([]models.CatalogGroup, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []models.CatalogGroup{}, nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "name")
	}
	if _, ok := cols["members"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "members")
	}

	get := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	groups := make([]models.CatalogGroup, 0, len(records)-1)
	for n, rec := range records[1:] {
		g := models.CatalogGroup{
			Name:           get(rec, "name"),
			Risk:           get(rec, "risk"),
			CVSS:           get(rec, "cvss"),
			Observation:    get(rec, "observation"),
			Impact:         get(rec, "impact"),
			Recommendation: get(rec, "recommendation"),
			Reference:      get(rec, "reference"),
			Members:        splitMembers(get(rec, "members")),
		}
		if raw := strings.TrimSpace(get(rec, "id")); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid id %q", n+2, raw)
			}
			g.ID = id
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// splitMembers turns a newline-separated cell into member variants.
func splitMembers(cell string) []string {
	cell = strings.ReplaceAll(cell, "\r\n", "\n")
	members := make([]string, 0)
	for _, line := range strings.Split(cell, "\n") {
		if line == "" {
			continue
		}
		members = append(members, line)
	}
	return members
}

func assignIDs(groups []models.CatalogGroup) error {
	seen := make(map[int]int, len(groups))
	for i := range groups {
		if groups[i].ID == 0 {
			groups[i].ID = i + 1
		}
		if groups[i].ID < 0 {
			return fmt.Errorf("row %d: catalog ids must be positive, got %d", i+1, groups[i].ID)
		}
		if prev, dup := seen[groups[i].ID]; dup {
			return fmt.Errorf("rows %d and %d share id %d", prev+1, i+1, groups[i].ID)
		}
		seen[groups[i].ID] = i
	}
	return nil
}

// Save writes groups to path in the format implied by its extension.
func Save(path string, groups []models.CatalogGroup) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	var data []byte
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(File{Version: "1", Groups: groups})
		if err != nil {
			return fmt.Errorf("marshal catalog: %w", err)
		}
		data = out
	case ".csv":
		var b strings.Builder
		w := csv.NewWriter(&b)
		if err := w.Write(csvHeader); err != nil {
			return err
		}
		for _, g := range groups {
			row := []string{
				strconv.Itoa(g.ID), g.Name, g.Risk, g.CVSS, g.Observation,
				g.Impact, g.Recommendation, g.Reference, strings.Join(g.Members, "\n"),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("write catalog csv: %w", err)
		}
		data = []byte(b.String())
	default:
		return fmt.Errorf("unsupported catalog format %q (use .yaml, .yml or .csv)", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// GroupFromDetails builds a catalog row from an operator-confirmed session group.
// The ID is left zero; AppendGroups assigns it.
func GroupFromDetails(d models.Details, members []string) models.CatalogGroup {
	m := make([]string, len(members))
	copy(m, members)
	return models.CatalogGroup{
		Name:           d.Name,
		Risk:           d.Risk,
		CVSS:           d.CVSS,
		Observation:    d.Observation,
		Impact:         d.Impact,
		Recommendation: d.Recommendation,
		Reference:      d.Reference,
		Members:        m,
	}
}

// AppendGroups adds new groups to the end of the catalog at path, giving them
// the next positive IDs after the current maximum. A missing file is created.
// Returns the groups as written, with IDs assigned.
func AppendGroups(path string, groups []models.CatalogGroup) ([]models.CatalogGroup, error) {
	existing, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		existing = []models.CatalogGroup{}
	}

	next := 1
	for _, g := range existing {
		if g.ID >= next {
			next = g.ID + 1
		}
	}

	added := make([]models.CatalogGroup, 0, len(groups))
	for _, g := range groups {
		g.ID = next
		next++
		added = append(added, g)
	}

	if err := Save(path, append(existing, added...)); err != nil {
		return nil, err
	}
	return added, nil
}
