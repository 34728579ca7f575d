// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package logging centralizes construction of the hclog.Logger used across
// the module's adapters and coordination core.
package logging

import (
	"os"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
)

var base = sync.OnceValue(func() hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("SCATTERGATHER_LOG"))
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "scattergather",
		Level: level,
	})
})

// HCLogger returns the module's root logger, constructed once and shared
// across callers. Individual components derive named sub-loggers from it
// with Named/With rather than constructing their own.
func HCLogger() hclog.Logger {
	return base()
}
