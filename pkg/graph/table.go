package graph

import (
	"strings"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// Table is the tabular projection of rows onto a set of columns. List values are joined
// with "; ".
type Table struct {
	Columns  []string   `json:"columns"`
	EntryIDs []string   `json:"entry_ids"`
	Rows     [][]string `json:"rows"`
}

// ProjectTable builds the table for rows over columns.
func ProjectTable(rows []dataset.Row, columns []string) Table {
	t := Table{
		Columns:  append([]string(nil), columns...),
		EntryIDs: make([]string, 0, len(rows)),
		Rows:     make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = strings.Join(r.Labels(c), "; ")
		}
		t.EntryIDs = append(t.EntryIDs, r.ID)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// Filter keeps only the rows whose entry id is retained.
func (t Table) Filter(retained map[string]bool) Table {
	out := Table{Columns: t.Columns}
	for i, id := range t.EntryIDs {
		if retained[id] {
			out.EntryIDs = append(out.EntryIDs, id)
			out.Rows = append(out.Rows, t.Rows[i])
		}
	}
	return out
}

// FilterRows keeps only the retained rows, preserving order.
func FilterRows(rows []dataset.Row, retained map[string]bool) []dataset.Row {
	out := make([]dataset.Row, 0, len(rows))
	for _, r := range rows {
		if retained[r.ID] {
			out = append(out, r)
		}
	}
	return out
}
