// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

package coordination

import (
	"context"
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
)

// Core implements the five scatter-gather operations described in spec
// §4.3 on top of a Port. It holds no state of its own: every call is a
// short sequence of persistent round-trips, and concurrent callers are
// expected to share the same backing store through independent Core
// instances (or the same one — Core carries no mutable fields).
type Core struct {
	port   Port
	logger hclog.Logger
}

// NewCore returns a Core that drives port. A nil logger falls back to
// hclog.NewNullLogger, matching the teacher's pattern of always having a
// usable logger rather than nil-checking at every call site.
func NewCore(port Port, logger hclog.Logger) *Core {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Core{port: port, logger: logger}
}

// BeginScatter erases any residual state for req (see cleanup below), then
// inserts a fresh Request row with scatterCompleted=false and no locker id.
func (c *Core) BeginScatter(ctx context.Context, req RequestID, requestContext string) error {
	if req == "" {
		return ErrRequestIDEmpty
	}
	log := c.logger.With("request_id", req, "op", "BeginScatter")
	log.Trace("wiping residual state before re-creating request")

	if err := c.cleanup(ctx, req); err != nil {
		return fmt.Errorf("scattergather: BeginScatter: clearing residual state for %q: %w", req, err)
	}

	if err := c.port.PutRequest(ctx, req, requestContext, time.Now()); err != nil {
		return fmt.Errorf("scattergather: BeginScatter: creating request %q: %w", req, err)
	}

	log.Debug("request created")
	return nil
}

// Scatter inserts partIDs as Part rows, then invokes callback. Parts are
// persisted before callback runs: if callback ran first, a fast worker
// could Gather a part whose row does not yet exist and fire premature
// completion.
func (c *Core) Scatter(ctx context.Context, req RequestID, parts []PartID, callback func() error) error {
	if req == "" {
		return ErrRequestIDEmpty
	}
	if len(parts) > 0 {
		if err := c.port.PutParts(ctx, req, parts); err != nil {
			return fmt.Errorf("scattergather: Scatter: persisting %d part(s) for %q: %w", len(parts), req, err)
		}
	}
	c.logger.Trace("parts persisted, invoking callback", "request_id", req, "op", "Scatter", "part_count", len(parts))
	return callback()
}

// ScatterWithResult is the generic-returning variant of Scatter: callback's
// return value is forwarded to the caller once the parts have been
// persisted. It exists because the five-operation contract in spec §4.3 is
// itself expressed in terms of a plain Scatter; callers that want a typed
// result use this wrapper instead of threading a type parameter through
// every method of Core.
func ScatterWithResult[T any](ctx context.Context, c *Core, req RequestID, parts []PartID, callback func() (T, error)) (T, error) {
	var result T
	err := c.Scatter(ctx, req, parts, func() error {
		var cbErr error
		result, cbErr = callback()
		return cbErr
	})
	return result, err
}

// EndScatter sets scatterCompleted=true, then attempts completion once
// with a deterministic, call-site-scoped locker id. After EndScatter
// returns, no further Scatter calls are expected, though the protocol
// remains well-defined if they occur (spec §3 invariant 3).
func (c *Core) EndScatter(ctx context.Context, req RequestID, handler CompletionHandler) error {
	if req == "" {
		return ErrRequestIDEmpty
	}
	log := c.logger.With("request_id", req, "op", "EndScatter")

	if err := c.port.MarkScatterCompleted(ctx, req); err != nil {
		return fmt.Errorf("scattergather: EndScatter: marking %q complete: %w", req, err)
	}

	completed, err := c.attemptCompletion(ctx, req, lockerIDForEndScatter(req), handler)
	if err != nil {
		return err
	}
	if completed {
		log.Debug("completion handler invoked from EndScatter")
	} else {
		log.Trace("not completed: parts remain outstanding or claim lost")
	}
	return nil
}

// Gather deletes the named Part rows, then attempts completion once with a
// locker id derived from the first supplied part id. Deleting already
// absent parts is not an error.
func (c *Core) Gather(ctx context.Context, req RequestID, parts []PartID, handler CompletionHandler) error {
	if req == "" {
		return ErrRequestIDEmpty
	}
	if len(parts) == 0 {
		return ErrNoPartIDs
	}
	return c.GatherWithLockerID(ctx, req, parts, lockerIDForGather(parts[0]), handler)
}

// GatherWithLockerID behaves like Gather but lets the caller supply the
// locker id used for the completion claim, instead of deriving it from the
// first part id. This resolves the ambiguity noted in spec §9.2: a worker
// that retries a multi-part gather with a different "first" part id would
// otherwise not be recognized as re-entrant.
func (c *Core) GatherWithLockerID(ctx context.Context, req RequestID, parts []PartID, lockerID string, handler CompletionHandler) error {
	if req == "" {
		return ErrRequestIDEmpty
	}
	if len(parts) == 0 {
		return ErrNoPartIDs
	}
	log := c.logger.With("request_id", req, "op", "Gather", "part_count", len(parts))

	if err := c.port.DeleteParts(ctx, req, parts); err != nil {
		return fmt.Errorf("scattergather: Gather: deleting %d part(s) for %q: %w", len(parts), req, err)
	}

	completed, err := c.attemptCompletion(ctx, req, lockerID, handler)
	if err != nil {
		return err
	}
	if completed {
		log.Debug("completion handler invoked from Gather")
	} else {
		log.Trace("not completed: parts remain outstanding or claim lost")
	}
	return nil
}

// attemptCompletion implements the completion protocol of spec §4.4:
// emptiness probe, claim attempt, handler invocation, cleanup. It returns
// (true, nil) only when this call site won the claim and the handler
// returned successfully.
func (c *Core) attemptCompletion(ctx context.Context, req RequestID, lockerID string, handler CompletionHandler) (bool, error) {
	anyParts, err := c.port.AnyPartsExist(ctx, req)
	if err != nil {
		return false, fmt.Errorf("scattergather: probing outstanding parts for %q: %w", req, err)
	}
	if anyParts {
		return false, nil
	}

	requestContext, claimed, err := c.port.TryClaim(ctx, req, lockerID)
	if err != nil {
		return false, fmt.Errorf("scattergather: claiming completion for %q: %w", req, err)
	}
	if !claimed {
		return false, nil
	}

	// From here on we hold the completion critical section under lockerID.
	// If handler fails, we propagate the error without cleaning up: the
	// Request row keeps scatterCompleted=true and locker_id=lockerID, so a
	// retry from the same call site re-enters the claim (it matches its own
	// locker id) and can complete cleanup.
	if err := handler(ctx, requestContext); err != nil {
		c.logger.Warn("completion handler failed; request left claimed for a retry from the same call site", "request_id", req, "locker_id", lockerID, "error", err)
		return false, fmt.Errorf("scattergather: completion handler for %q: %w", req, err)
	}

	if err := c.cleanup(ctx, req); err != nil {
		return false, fmt.Errorf("scattergather: cleanup after completion for %q: %w", req, err)
	}
	return true, nil
}

// cleanup repeatedly lists and deletes every Part row for req, then
// deletes the Request row. It is invoked both at the start of BeginScatter
// (wiping residue from a prior attempt) and after a successful completion
// handler.
func (c *Core) cleanup(ctx context.Context, req RequestID) error {
	var errs *multierror.Error
	for {
		parts, err := c.port.ListParts(ctx, req)
		if err != nil {
			return fmt.Errorf("listing parts for %q: %w", req, err)
		}
		if len(parts) == 0 {
			break
		}
		if err := c.port.DeleteParts(ctx, req, parts); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("deleting %d part(s) for %q: %w", len(parts), req, err))
			break
		}
	}
	if errs != nil {
		return errs.ErrorOrNil()
	}
	if err := c.port.DeleteRequest(ctx, req); err != nil {
		return fmt.Errorf("deleting request %q: %w", req, err)
	}
	return nil
}
