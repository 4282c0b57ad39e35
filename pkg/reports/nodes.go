package reports

import (
	"context"
	"io"
	"strconv"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
)

// NodesReport lists the nodes of a view with their degree and position.
type NodesReport struct{}

func (r *NodesReport) Generate(ctx context.Context, src Source) (io.Reader, error) {
	if src.View == nil {
		return nil, apperrors.NotFound("GRAPH_NOT_FOUND", "no graph to report on")
	}
	out, err := newCSVBuffer([]string{"id", "feature", "label", "size", "entries", "degree", "component", "x", "y"})
	if err != nil {
		return nil, err
	}

	deg := degrees(src.View)
	for _, n := range src.View.Nodes {
		if err := out.row(
			strconv.Itoa(n.ID),
			n.Feature,
			n.Label,
			strconv.Itoa(n.Size),
			strconv.Itoa(len(n.Entries)),
			strconv.Itoa(deg[n.ID]),
			strconv.Itoa(n.Component),
			strconv.FormatFloat(n.X, 'f', 3, 64),
			strconv.FormatFloat(n.Y, 'f', 3, 64),
		); err != nil {
			return nil, err
		}
	}
	return out.reader()
}

func degrees(v *graph.View) []int {
	deg := make([]int, len(v.Nodes))
	for _, e := range v.Edges {
		deg[e.Source]++
		deg[e.Target]++
	}
	return deg
}
