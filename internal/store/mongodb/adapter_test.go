// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/salvois/ScatterGather/internal/coordination"
)

func TestChunkParts(t *testing.T) {
	parts := make([]coordination.PartID, 0, 51)
	for i := 0; i < 51; i++ {
		parts = append(parts, coordination.PartID(string(rune('a'+i%26))))
	}

	chunks := chunkParts(parts, batchLimit)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 25 || len(chunks[1]) != 25 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkPartsEmpty(t *testing.T) {
	if chunks := chunkParts(nil, batchLimit); chunks != nil {
		t.Fatalf("chunkParts(nil) = %v, want nil", chunks)
	}
}

var _ coordination.Port = (*Adapter)(nil)

// testACC skips a test unless SCATTERGATHER_ACC is set: these tests need a
// live (or local) mongod and are not run by default.
func testACC(t *testing.T) {
	t.Helper()
	if os.Getenv("SCATTERGATHER_ACC") == "" {
		t.Skip("SCATTERGATHER_ACC not set; skipping adapter acceptance test")
	}
}

func TestAdapterLifecycleAgainstLiveServer(t *testing.T) {
	testACC(t)

	uri := os.Getenv("SCATTERGATHER_MONGODB_URI")
	if uri == "" {
		t.Skip("SCATTERGATHER_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)

	adapter, err := New(ctx, client.Database("scattergather_test"), "acc")
	if err != nil {
		t.Fatal(err)
	}

	if err := adapter.PutRequest(ctx, "acc-req", "ctx", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := adapter.PutParts(ctx, "acc-req", []coordination.PartID{"p1", "p2"}); err != nil {
		t.Fatal(err)
	}
	any, err := adapter.AnyPartsExist(ctx, "acc-req")
	if err != nil {
		t.Fatal(err)
	}
	if !any {
		t.Fatal("expected parts to exist")
	}
}
