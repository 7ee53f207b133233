// Copyright (C) MongoDB, Inc. 2022-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package csot implements client-side operation timeout context helpers:
// stamping a context with an overall operation deadline and recovering it
// where the wire-message/server-selection layers need to cap their own
// waits by whatever is left (grounded on internal/csot/csot.go).
package csot

import (
	"context"
	"time"
)

type timeoutKey struct{}

// MakeTimeoutContext attaches a CSOT deadline of to to ctx, returning a
// no-op cancel func when to is zero (no timeout requested).
func MakeTimeoutContext(ctx context.Context, to time.Duration) (context.Context, context.CancelFunc) {
	cancelFunc := func() {}
	if to != 0 {
		ctx, cancelFunc = context.WithTimeout(ctx, to)
	}
	return context.WithValue(ctx, timeoutKey{}, true), cancelFunc
}

// IsTimeoutContext reports whether ctx was produced by MakeTimeoutContext.
func IsTimeoutContext(ctx context.Context) bool {
	return ctx.Value(timeoutKey{}) != nil
}

type skipMaxTime struct{}

// NewSkipMaxTimeContext marks ctx so operation construction skips adding
// maxTimeMS to the outgoing command regardless of a context deadline,
// used for the monitor's non-awaitable hello commands.
func NewSkipMaxTimeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipMaxTime{}, true)
}

// IsSkipMaxTimeContext reports whether ctx was produced by
// NewSkipMaxTimeContext.
func IsSkipMaxTimeContext(ctx context.Context) bool {
	return ctx.Value(skipMaxTime{}) != nil
}

// WithServerSelectionTimeout bounds ctx by the lesser of its existing
// deadline (if any) and serverSelectionTimeout.
func WithServerSelectionTimeout(
	parent context.Context,
	serverSelectionTimeout time.Duration,
) (context.Context, context.CancelFunc) {
	var timeout time.Duration

	deadline, ok := parent.Deadline()
	if ok {
		timeout = time.Until(deadline)
	}

	if !ok && serverSelectionTimeout <= 0 {
		return parent, func() {}
	}

	if !ok {
		timeout = serverSelectionTimeout
	} else if timeout >= serverSelectionTimeout && serverSelectionTimeout > 0 {
		timeout = serverSelectionTimeout
	}

	return context.WithTimeout(parent, timeout)
}
