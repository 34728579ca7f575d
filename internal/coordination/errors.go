// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

package coordination

import "errors"

// ErrRequestIDEmpty is returned by BeginScatter, Scatter, EndScatter, and
// Gather when called with an empty request id.
var ErrRequestIDEmpty = errors.New("scattergather: request id must not be empty")

// ErrNoPartIDs is returned by Gather when called with no part ids: the
// protocol needs at least one part id to derive a locker id from (see
// spec §4.3, §9.2).
var ErrNoPartIDs = errors.New("scattergather: gather requires at least one part id")
