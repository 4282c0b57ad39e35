package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/client"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: facetgraph <command> [flags]

Commands:
  build     build a graph for a session
  trim      keep only some entries of a session
  graph     print the cached graph of a session
  history   list the history of a study
  report    download a CSV report of a session
  version   print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	endpoint := os.Getenv("FACETGRAPH_URL")
	c := client.NewClient(endpoint)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(ctx, c, os.Args[2:], os.Stdout)
	case "trim":
		err = runTrim(ctx, c, os.Args[2:], os.Stdout)
	case "graph":
		err = runGraph(ctx, c, os.Args[2:], os.Stdout)
	case "history":
		err = runHistory(ctx, c, os.Args[2:], os.Stdout)
	case "report":
		err = runReport(ctx, c, os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("facetgraph %s (%s, %s)\n", Version, Commit, BuildTime)
	default:
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) {
			fmt.Fprintln(os.Stderr, "Is facetgraph-d running?")
		}
		os.Exit(1)
	}
}

// list splits a comma separated flag value, dropping blanks.
func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("facetgraph "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func summary(w io.Writer, v *graph.View) {
	if v == nil {
		fmt.Fprintln(w, "empty graph")
		return
	}
	fmt.Fprintf(w, "%s graph: %d nodes, %d edges, %d components\n", v.Type, len(v.Nodes), len(v.Edges), len(v.Components))
}

func runBuild(ctx context.Context, c *client.Client, args []string, w io.Writer) error {
	fs := newFlagSet("build")
	session := fs.String("session", "", "session id")
	study := fs.String("study", "", "study id")
	datasetID := fs.String("dataset", "", "dataset id")
	search := fs.String("search", "", "search id; a new id forces a new search")
	parent := fs.String("parent", "", "history entry to branch from")
	graphType := fs.String("type", string(graph.Detail), "graph type: overview|detail")
	queryJSON := fs.String("query", "", "query expression as JSON")
	dims := fs.String("dims", "", "comma separated visible features")
	props := fs.String("props", "", "comma separated anchor properties")
	changed := fs.Bool("switch", false, "rebuild the requested type from the cached rows")
	asJSON := fs.Bool("json", false, "print the full graph as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := client.BuildRequest{
		SessionID:        *session,
		StudyID:          *study,
		DatasetID:        *datasetID,
		ParentID:         *parent,
		SearchID:         *search,
		GraphType:        graph.GraphType(*graphType),
		Dimensions:       list(*dims),
		AnchorProperties: list(*props),
		GraphTypeChanged: *changed,
	}
	if *queryJSON != "" {
		var q query.Query
		if err := json.Unmarshal([]byte(*queryJSON), &q); err != nil {
			return fmt.Errorf("invalid query: %w", err)
		}
		req.Query = q
	}

	res, err := c.BuildGraph(ctx, req)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "history entry %s (%s, %s)\n", res.HistoryEntryID, res.Decision.Strategy, res.Decision.Provenance)
	summary(w, res.Graph)
	return nil
}

func runTrim(ctx context.Context, c *client.Client, args []string, w io.Writer) error {
	fs := newFlagSet("trim")
	session := fs.String("session", "", "session id")
	graphType := fs.String("type", string(graph.Detail), "graph type: overview|detail")
	entries := fs.String("entries", "", "comma separated entry ids to keep")
	parent := fs.String("parent", "", "history entry to branch from")
	asJSON := fs.Bool("json", false, "print the full graph as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v, err := c.TrimGraph(ctx, client.TrimRequest{
		SessionID: *session,
		GraphType: graph.GraphType(*graphType),
		EntryIDs:  list(*entries),
		ParentID:  *parent,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(w, v)
	}
	summary(w, v)
	return nil
}

func runGraph(ctx context.Context, c *client.Client, args []string, w io.Writer) error {
	fs := newFlagSet("graph")
	session := fs.String("session", "", "session id")
	graphType := fs.String("type", string(graph.Detail), "graph type: overview|detail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := c.GetGraph(ctx, *session, graph.GraphType(*graphType))
	if err != nil {
		return err
	}
	return printJSON(w, v)
}

func runHistory(ctx context.Context, c *client.Client, args []string, w io.Writer) error {
	fs := newFlagSet("history")
	study := fs.String("study", "", "study id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entries, err := c.GetHistory(ctx, *study)
	if err != nil {
		return err
	}
	depth := make(map[string]int, len(entries))
	for _, e := range entries {
		d := 0
		if e.ParentID != "" {
			d = depth[e.ParentID] + 1
		}
		depth[e.ID] = d
		fmt.Fprintf(w, "%s%s  %-8s %-26s %d nodes %d edges  %s\n",
			strings.Repeat("  ", d), e.ID, e.GraphType, e.Action, e.NodeCount, e.EdgeCount,
			e.CreatedAt.Format(time.RFC3339))
		for _, cm := range e.Comments {
			fmt.Fprintf(w, "%s  # %s: %s\n", strings.Repeat("  ", d), cm.Author, cm.Body)
		}
	}
	return nil
}

func runReport(ctx context.Context, c *client.Client, args []string, w io.Writer) error {
	fs := newFlagSet("report")
	session := fs.String("session", "", "session id")
	kind := fs.String("kind", "nodes", "report: nodes|components|table")
	graphType := fs.String("type", string(graph.Detail), "graph type: overview|detail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	body, err := c.Report(ctx, *session, *kind, graph.GraphType(*graphType))
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
