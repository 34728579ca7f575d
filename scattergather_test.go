// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

package scattergather_test

import (
	"context"
	"testing"

	scattergather "github.com/salvois/ScatterGather"
	"github.com/salvois/ScatterGather/internal/store/inmem"
)

func TestGatewayEndToEnd(t *testing.T) {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	var calls int
	handler := func(_ context.Context, requestContext string) error {
		calls++
		if requestContext != "payload" {
			t.Errorf("handler context = %q, want %q", requestContext, "payload")
		}
		return nil
	}

	if err := gw.BeginScatter(ctx, "req-1", "payload"); err != nil {
		t.Fatal(err)
	}
	if err := gw.Scatter(ctx, "req-1", []scattergather.PartID{"a", "b"}, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := gw.EndScatter(ctx, "req-1", handler); err != nil {
		t.Fatal(err)
	}
	if err := gw.Gather(ctx, "req-1", []scattergather.PartID{"a"}, handler); err != nil {
		t.Fatal(err)
	}
	if err := gw.Gather(ctx, "req-1", []scattergather.PartID{"b"}, handler); err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestScatterWithResultForwardsCallbackValue(t *testing.T) {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	if err := gw.BeginScatter(ctx, "req-1", "payload"); err != nil {
		t.Fatal(err)
	}

	result, err := scattergather.ScatterWithResult(ctx, gw, "req-1", []scattergather.PartID{"a"}, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
}

func TestGatherWithLockerIDAllowsCallerControl(t *testing.T) {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	var calls int
	handler := func(_ context.Context, _ string) error {
		calls++
		return nil
	}

	if err := gw.BeginScatter(ctx, "req-1", "payload"); err != nil {
		t.Fatal(err)
	}
	if err := gw.Scatter(ctx, "req-1", []scattergather.PartID{"a", "b"}, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := gw.EndScatter(ctx, "req-1", handler); err != nil {
		t.Fatal(err)
	}

	lockerID, err := scattergather.NewLockerID()
	if err != nil {
		t.Fatal(err)
	}
	if lockerID == "" {
		t.Fatal("NewLockerID returned an empty id")
	}

	if err := gw.GatherWithLockerID(ctx, "req-1", []scattergather.PartID{"a", "b"}, lockerID, handler); err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestEmptyRequestIDRejected(t *testing.T) {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	if err := gw.BeginScatter(ctx, "", "ctx"); err == nil {
		t.Fatal("expected error for empty request id")
	}
}

func TestGatherWithNoPartsRejected(t *testing.T) {
	ctx := context.Background()
	gw := scattergather.NewGateway(inmem.New())

	if err := gw.BeginScatter(ctx, "req-1", "ctx"); err != nil {
		t.Fatal(err)
	}
	if err := gw.Gather(ctx, "req-1", nil, func(context.Context, string) error { return nil }); err == nil {
		t.Fatal("expected error for empty part id list")
	}
}
