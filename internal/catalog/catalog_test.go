package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `version: "1"
groups:
  - name: SQL Injection
    risk: High
    cvss: "8.6"
    observation: User input reaches SQL queries unsanitized.
    members:
      - SQL Injection
      - SQLi
  - name: Weak TLS
    risk: Medium
    members:
      - TLS Version 1.0 Protocol Detection
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", sampleYAML)

	groups, err := Load(path)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, 1, groups[0].ID)
	assert.Equal(t, "SQL Injection", groups[0].Name)
	assert.Equal(t, "8.6", groups[0].CVSS)
	assert.Equal(t, []string{"SQL Injection", "SQLi"}, groups[0].Members)
	assert.Equal(t, 2, groups[1].ID)
}

func TestLoadCSV(t *testing.T) {
	content := "Name,Risk,Members\n" +
		"SQL Injection,High,\"SQL Injection\nSQLi\"\n" +
		"Weak TLS,Medium,TLS Version 1.0 Protocol Detection\n"
	path := writeFile(t, "catalog.csv", content)

	groups, err := Load(path)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"SQL Injection", "SQLi"}, groups[0].Members)
	assert.Equal(t, 2, groups[1].ID)
	assert.Equal(t, "Medium", groups[1].Risk)
}

func TestLoadCSVMissingColumn(t *testing.T) {
	path := writeFile(t, "catalog.csv", "Name,Risk\nA,High\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "members")
}

func TestLoadDuplicateIDs(t *testing.T) {
	path := writeFile(t, "catalog.yaml", `groups:
  - id: 4
    name: A
    members: [a]
  - id: 4
    name: B
    members: [b]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share id 4")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "catalog.txt", "x")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalog format")
}

func TestAppendGroupsAssignsNextIDs(t *testing.T) {
	for _, name := range []string{"catalog.yaml", "catalog.csv"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, []models.CatalogGroup{
				{ID: 1, Name: "SQL Injection", Risk: "High", Members: []string{"SQLi"}},
				{ID: 7, Name: "Weak TLS", Risk: "Medium", Members: []string{"TLS 1.0"}},
			}))

			details := models.Details{
				Name: "Weak Ciphers", Risk: "Medium", Observation: "o", Impact: "i", Recommendation: "r",
			}
			added, err := AppendGroups(path, []models.CatalogGroup{
				GroupFromDetails(details, []string{"Weak Cipher A", "Weak Cipher B"}),
			})
			require.NoError(t, err)
			require.Len(t, added, 1)
			assert.Equal(t, 8, added[0].ID)

			groups, err := Load(path)
			require.NoError(t, err)
			require.Len(t, groups, 3)
			assert.Equal(t, "Weak Ciphers", groups[2].Name)
			assert.Equal(t, []string{"Weak Cipher A", "Weak Cipher B"}, groups[2].Members)
		})
	}
}

func TestAppendGroupsCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.yaml")

	added, err := AppendGroups(path, []models.CatalogGroup{{Name: "A", Risk: "Low", Members: []string{"a"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, added[0].ID)

	groups, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}
