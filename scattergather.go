// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package scattergather is a durable scatter-gather coordination gateway:
// it tracks the progress of a logical operation split into many independent
// parts, typically executed by a distributed pool of workers, and fires a
// single completion callback exactly once when every part has reported
// completion. State lives in an external database through a Port adapter
// (see the internal/store/dynamodb and internal/store/mongodb packages) so that
// coordination survives process restarts and works across processes.
package scattergather

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/salvois/ScatterGather/internal/coordination"
	"github.com/salvois/ScatterGather/internal/logging"
)

// RequestID identifies one scatter-gather operation.
type RequestID = coordination.RequestID

// PartID identifies one outstanding sub-operation of a request.
type PartID = coordination.PartID

// CompletionHandler is invoked by the call site that wins the completion
// claim, with the context string supplied to the most recent BeginScatter
// for the request. If it returns an error, a retry from the same call site
// invokes it again.
type CompletionHandler = coordination.CompletionHandler

// Port is the persistence capability set a backend adapter must provide.
// See internal/store/dynamodb, internal/store/mongodb, and
// internal/store/inmem for implementations.
type Port = coordination.Port

var (
	ErrRequestIDEmpty = coordination.ErrRequestIDEmpty
	ErrNoPartIDs      = coordination.ErrNoPartIDs
)

// Gateway is the public facade over the coordination core: the five
// operations of spec §4.3, plus the RequestID/PartID value types above.
type Gateway struct {
	core *coordination.Core
}

// Option configures a Gateway.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	logger hclog.Logger
}

// WithLogger sets the hclog.Logger the Gateway and its coordination core
// log through. Without this option, a named sub-logger of the module's
// shared root logger is used.
func WithLogger(logger hclog.Logger) Option {
	return func(c *gatewayConfig) { c.logger = logger }
}

// NewGateway returns a Gateway backed by port.
func NewGateway(port Port, opts ...Option) *Gateway {
	cfg := &gatewayConfig{logger: logging.HCLogger().Named("gateway")}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Gateway{core: coordination.NewCore(port, cfg.logger)}
}

// BeginScatter erases any residual state for req and inserts a fresh
// Request row with no parts and no locker. It serves both first-time
// creation and the "retry with a new set of parts" scenario: an in-flight
// prior attempt is wiped, so previously added parts can no longer trigger
// completion.
func (g *Gateway) BeginScatter(ctx context.Context, req RequestID, requestContext string) error {
	return g.core.BeginScatter(ctx, req, requestContext)
}

// Scatter persists partIDs as outstanding parts of req, then invokes
// callback. Parts are always persisted before callback runs.
func (g *Gateway) Scatter(ctx context.Context, req RequestID, partIDs []PartID, callback func() error) error {
	return g.core.Scatter(ctx, req, partIDs, callback)
}

// ScatterWithResult is the generic-returning variant of Scatter: callback's
// return value is forwarded to the caller once the parts have been
// persisted.
func ScatterWithResult[T any](ctx context.Context, g *Gateway, req RequestID, partIDs []PartID, callback func() (T, error)) (T, error) {
	return coordination.ScatterWithResult(ctx, g.core, req, partIDs, callback)
}

// EndScatter marks req's scatter phase complete and attempts completion
// once. After EndScatter returns, no further Scatter calls are expected,
// though the protocol remains well-defined if they occur.
func (g *Gateway) EndScatter(ctx context.Context, req RequestID, handler CompletionHandler) error {
	return g.core.EndScatter(ctx, req, handler)
}

// Gather deletes partIDs from req's outstanding parts and attempts
// completion once, using a locker id derived from partIDs[0].
func (g *Gateway) Gather(ctx context.Context, req RequestID, partIDs []PartID, handler CompletionHandler) error {
	return g.core.Gather(ctx, req, partIDs, handler)
}

// GatherWithLockerID behaves like Gather but lets the caller supply the
// locker id used for the completion claim, giving full re-entrancy control
// to a worker that cannot guarantee the same "first" part id across retries.
func (g *Gateway) GatherWithLockerID(ctx context.Context, req RequestID, partIDs []PartID, lockerID string, handler CompletionHandler) error {
	return g.core.GatherWithLockerID(ctx, req, partIDs, lockerID, handler)
}

// NewLockerID returns a fresh, random locker id for callers of
// GatherWithLockerID that want a per-worker token instead of deriving one
// from the gathered part ids.
func NewLockerID() (string, error) {
	return coordination.NewLockerID()
}
