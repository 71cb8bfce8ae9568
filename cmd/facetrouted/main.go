// Command facetrouted runs a facet routing dispatcher behind gRPC and a
// read-only HTTP view.
//
// Usage:
//
//	facetrouted [serve] -config facetrouted.toml
//	facetrouted token -config facetrouted.toml -principal dao -ttl 24h
//	facetrouted archive -config facetrouted.toml manifest.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "facetrouted: %v\n", err)
		os.Exit(1)
	}
}
