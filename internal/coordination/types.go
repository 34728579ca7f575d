// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package coordination implements the scatter-gather coordination protocol:
// request/part lifecycle, completion detection, and the completion critical
// section. It holds no state of its own beyond the arguments of each call;
// all state lives behind the Port.
package coordination

import (
	"context"
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
)

// RequestID identifies one scatter-gather operation.
type RequestID string

// PartID identifies one outstanding sub-operation of a request.
type PartID string

func (r RequestID) String() string { return string(r) }
func (p PartID) String() string    { return string(p) }

// CompletionHandler is invoked by the call site that wins the completion
// claim, with the context string supplied to the most recent BeginScatter
// for the request. If it returns an error, a retry from the same call site
// invokes it again.
type CompletionHandler func(ctx context.Context, requestContext string) error

// lockerIDForEndScatter and lockerIDForGather derive the deterministic,
// per-call-site locker ids described in spec §4.4. They are not random:
// a retried call from the same call site must present the same id so that
// it can re-enter the completion critical section.
func lockerIDForEndScatter(req RequestID) string {
	return fmt.Sprintf("EndScatter-%s", req)
}

func lockerIDForGather(firstPart PartID) string {
	return fmt.Sprintf("Gather-%s", firstPart)
}

// NewLockerID returns a fresh, random locker id for callers of
// GatherWithLockerID who cannot derive a stable, deterministic id for their
// own call site (spec §9.2) and would rather mint one per worker lifetime
// than rely on the first part id in a multi-part gather. It is never called
// by the core protocol itself, which derives its locker ids deterministically
// per §4.4.
func NewLockerID() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("scattergather: generating locker id: %w", err)
	}
	return id, nil
}
