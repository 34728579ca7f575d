// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package inmem is a mutex-guarded, in-process implementation of
// coordination.Port. It has no durability and no example dependency to
// ground it on beyond the teacher's own internal/backend/remote-state/inmem
// backend, which keeps its state and locks in package-level maps behind a
// sync.Mutex. Here the maps belong to each Adapter, so adapters returned by
// separate calls to New do not share state. It is the substrate for the coordination core's unit
// tests and a trivial embeddable backend for callers that don't need
// cross-process durability.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/salvois/ScatterGather/internal/coordination"
)

type requestRow struct {
	context          string
	createdAt        time.Time
	scatterCompleted bool
	lockerID         string
	hasLocker        bool
}

// Adapter is an in-memory coordination.Port. The zero value is not usable;
// construct one with New.
type Adapter struct {
	mu       sync.Mutex
	requests map[coordination.RequestID]*requestRow
	parts    map[coordination.RequestID]map[coordination.PartID]struct{}
}

// New returns an empty Adapter.
func New() *Adapter {
	return &Adapter{
		requests: make(map[coordination.RequestID]*requestRow),
		parts:    make(map[coordination.RequestID]map[coordination.PartID]struct{}),
	}
}

// Reset clears all request and part state. Mirrors the teacher's inmem
// backend Reset(), used between tests that want a clean slate.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = make(map[coordination.RequestID]*requestRow)
	a.parts = make(map[coordination.RequestID]map[coordination.PartID]struct{})
}

func (a *Adapter) PutRequest(_ context.Context, req coordination.RequestID, requestContext string, createdAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests[req] = &requestRow{context: requestContext, createdAt: createdAt}
	return nil
}

func (a *Adapter) MarkScatterCompleted(_ context.Context, req coordination.RequestID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	row, ok := a.requests[req]
	if !ok {
		return fmt.Errorf("inmem: no request %q", req)
	}
	row.scatterCompleted = true
	return nil
}

func (a *Adapter) TryClaim(_ context.Context, req coordination.RequestID, lockerID string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	row, ok := a.requests[req]
	if !ok {
		return "", false, nil
	}
	if !row.scatterCompleted {
		return "", false, nil
	}
	if row.hasLocker && row.lockerID != lockerID {
		return "", false, nil
	}
	row.hasLocker = true
	row.lockerID = lockerID
	return row.context, true, nil
}

func (a *Adapter) DeleteRequest(_ context.Context, req coordination.RequestID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.requests, req)
	return nil
}

func (a *Adapter) PutParts(_ context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.parts[req]
	if !ok {
		set = make(map[coordination.PartID]struct{})
		a.parts[req] = set
	}
	for _, p := range parts {
		set[p] = struct{}{}
	}
	return nil
}

func (a *Adapter) DeleteParts(_ context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.parts[req]
	if !ok {
		return nil
	}
	for _, p := range parts {
		delete(set, p)
	}
	if len(set) == 0 {
		delete(a.parts, req)
	}
	return nil
}

func (a *Adapter) AnyPartsExist(_ context.Context, req coordination.RequestID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parts[req]) > 0, nil
}

func (a *Adapter) ListParts(_ context.Context, req coordination.RequestID) ([]coordination.PartID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := a.parts[req]
	out := make([]coordination.PartID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out, nil
}

var _ coordination.Port = (*Adapter)(nil)
