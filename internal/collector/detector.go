package collector

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the encoding of a scan export or audit artifact
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatUnknown Format = "unknown"
)

// utf8BOM is written by spreadsheet tools at the start of CSV exports
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat identifies how a file is encoded.
// It uses a two-phase approach:
// 1. Trust a .json or .csv extension
// 2. Fallback to sniffing the first non-blank byte
func DetectFormat(path string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return FormatUnknown, fmt.Errorf("empty file: %s", path)
	}

	switch trimmed[0] {
	case '[', '{':
		return FormatJSON, nil
	}

	// A CSV export has a header line with at least one comma.
	firstLine, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if bytes.Contains(firstLine, []byte(",")) {
		return FormatCSV, nil
	}

	return FormatUnknown, fmt.Errorf("unrecognized format: %s", path)
}

// isSupportedExt reports whether directory walks should pick up the file
func isSupportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".csv":
		return true
	}
	return false
}
