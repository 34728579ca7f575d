// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Command scattergather-smoke wires the Gateway to the in-memory adapter
// and runs one scatter-gather epoch end to end. It exists purely as a
// runnable demonstration of the library's five operations, not as a CLI
// surface for the protocol itself (spec §6 defines none).
package main

import (
	"context"
	"fmt"
	"log"

	scattergather "github.com/salvois/ScatterGather"
	"github.com/salvois/ScatterGather/internal/store/inmem"
)

func main() {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	const req = scattergather.RequestID("demo-request")
	parts := []scattergather.PartID{"worker-1", "worker-2", "worker-3"}

	if err := gw.BeginScatter(ctx, req, "demo payload"); err != nil {
		log.Fatal(err)
	}

	if err := gw.Scatter(ctx, req, parts, func() error {
		fmt.Printf("dispatched %d part(s)\n", len(parts))
		return nil
	}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	handler := func(_ context.Context, requestContext string) error {
		fmt.Printf("completed with context %q\n", requestContext)
		close(done)
		return nil
	}

	if err := gw.EndScatter(ctx, req, handler); err != nil {
		log.Fatal(err)
	}

	for _, p := range parts {
		if err := gw.Gather(ctx, req, []scattergather.PartID{p}, handler); err != nil {
			log.Fatal(err)
		}
	}

	select {
	case <-done:
	default:
		log.Fatal("expected completion handler to have fired")
	}
}
