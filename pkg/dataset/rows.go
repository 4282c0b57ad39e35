package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// maxRowBytes bounds a single JSON Lines record.
const maxRowBytes = 4 << 20

// IsRowsFile reports whether name looks like a JSON Lines file of dataset rows.
func IsRowsFile(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".jsonl"
}

// RowsPath returns where the rows of a dataset live next to its configuration.
func RowsPath(dir, datasetID string) string {
	return filepath.Join(dir, datasetID+".jsonl")
}

// RowsDatasetID returns the dataset a rows file belongs to: its base name without extension.
func RowsDatasetID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// LoadRowsFile reads one row per line, {"id": ..., "values": {...}}. Blank lines are skipped.
func LoadRowsFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rows file %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRowBytes)
	var rows []Row
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var r Row
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, apperrors.Configuration("INVALID_ROW", "%s:%d: invalid row", filepath.Base(path), line).WithCause(err)
		}
		if r.ID == "" {
			return nil, apperrors.Configuration("INVALID_ROW", "%s:%d: row without id", filepath.Base(path), line)
		}
		rows = append(rows, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows file %s: %w", path, err)
	}
	return rows, nil
}
