package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// ComponentsReport summarizes the connected components of a view. Largest nodes are written as
// labels and largest connections as "feature:label (count)".
type ComponentsReport struct{}

func (r *ComponentsReport) Generate(ctx context.Context, src Source) (io.Reader, error) {
	v := src.View
	if v == nil {
		return nil, apperrors.NotFound("GRAPH_NOT_FOUND", "no graph to report on")
	}
	out, err := newCSVBuffer([]string{"id", "node_count", "entry_count", "largest_nodes", "largest_connections"})
	if err != nil {
		return nil, err
	}

	for _, c := range v.Components {
		largest := make([]string, 0, len(c.LargestNodes))
		for _, id := range c.LargestNodes {
			largest = append(largest, v.Nodes[id].Label)
		}
		conns := make([]string, 0, len(c.LargestConnections))
		for _, cc := range c.LargestConnections {
			conns = append(conns, fmt.Sprintf("%s:%s (%d)", cc.Feature, cc.Label, cc.Count))
		}
		if err := out.row(
			strconv.Itoa(c.ID),
			strconv.Itoa(c.NodeCount),
			strconv.Itoa(len(c.Entries)),
			strings.Join(largest, "; "),
			strings.Join(conns, "; "),
		); err != nil {
			return nil, err
		}
	}
	return out.reader()
}
