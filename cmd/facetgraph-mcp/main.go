package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rmax-ai/facetgraph/pkg/mcp"
)

func main() {
	endpoint := flag.String("url", os.Getenv("FACETGRAPH_URL"), "daemon URL")
	flag.Parse()

	// stdout carries the protocol; diagnostics go to stderr
	if err := mcp.NewServer(*endpoint).Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "facetgraph-mcp: %v\n", err)
		os.Exit(1)
	}
}
