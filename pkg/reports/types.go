package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/facetgraph/pkg/graph"
)

type ReportType string

const (
	ReportTypeNodes      ReportType = "nodes"
	ReportTypeComponents ReportType = "components"
	ReportTypeTable      ReportType = "table"
)

// Source is what a report is generated from: one view of a session and the session's table.
type Source struct {
	View  *graph.View
	Table graph.Table
}

type Generator interface {
	Generate(ctx context.Context, src Source) (io.Reader, error)
}
