package reports

import (
	"context"
	"io"
)

// TableReport writes the session's tabular projection, one row per entry.
type TableReport struct{}

func (r *TableReport) Generate(ctx context.Context, src Source) (io.Reader, error) {
	t := src.Table
	out, err := newCSVBuffer(append([]string{"entry_id"}, t.Columns...))
	if err != nil {
		return nil, err
	}
	for i, id := range t.EntryIDs {
		if err := out.row(append([]string{id}, t.Rows[i]...)...); err != nil {
			return nil, err
		}
	}
	return out.reader()
}
