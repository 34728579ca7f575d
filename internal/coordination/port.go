// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

package coordination

import (
	"context"
	"time"
)

// Port is the minimal capability set the coordination protocol requires
// from any backing store. Adapters translate these calls into native
// operations on a document store, a wide-column store, or anything else
// that can offer an atomic single-row conditional write and a
// strongly-consistent existence query.
//
// No method here carries protocol logic: an adapter must not retry on a
// failed condition, must not interpret the context string, and must not
// fabricate completion.
type Port interface {
	// PutRequest inserts or replaces the Request row for req with
	// scatterCompleted=false and no locker id. Idempotent.
	PutRequest(ctx context.Context, req RequestID, requestContext string, createdAt time.Time) error

	// MarkScatterCompleted unconditionally sets scatterCompleted=true for
	// req. A no-op if it is already true.
	MarkScatterCompleted(ctx context.Context, req RequestID) error

	// TryClaim is the atomic conditional update at the heart of the
	// protocol: it sets lockerID on the Request row for req if and only if
	// scatterCompleted is true and the row's current locker id is either
	// absent or equal to lockerID. ok reports whether the condition held;
	// when ok is true, claimedContext is the row's context value.
	TryClaim(ctx context.Context, req RequestID, lockerID string) (claimedContext string, ok bool, err error)

	// DeleteRequest deletes the Request row for req. Not an error if absent.
	DeleteRequest(ctx context.Context, req RequestID) error

	// PutParts inserts Part rows for req. Reinserting an existing
	// (req, partID) pair is tolerated silently.
	PutParts(ctx context.Context, req RequestID, parts []PartID) error

	// DeleteParts deletes Part rows for req. Deleting an absent row is not
	// an error.
	DeleteParts(ctx context.Context, req RequestID, parts []PartID) error

	// AnyPartsExist reports whether at least one Part row exists for req.
	// Must use a strongly-consistent read: a stale negative read here,
	// followed by a successful claim, would fire completion while parts
	// still exist.
	AnyPartsExist(ctx context.Context, req RequestID) (bool, error)

	// ListParts enumerates every Part row for req, for cleanup. Must use a
	// strongly-consistent read.
	ListParts(ctx context.Context, req RequestID) ([]PartID, error)
}
