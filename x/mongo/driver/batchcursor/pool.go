// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package batchcursor

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
)

// pendingKey groups abandoned cursor IDs that can share one killCursors
// command: the command names a single collection, so cursors from
// different namespaces on the same server still need separate commands.
type pendingKey struct {
	addr address.Address
	ns   Namespace
}

// Pool batches dead cursor IDs bound for the same server and namespace so
// the next ReapAbandoned call can kill all of them with a single
// killCursors command (its "cursors" array lists every id) instead of
// one round-trip per cursor.
type Pool struct {
	mu      sync.Mutex
	pending map[pendingKey][]int64
}

// NewPool constructs an empty Pool.
func NewPool() *Pool {
	return &Pool{pending: make(map[pendingKey][]int64)}
}

// Abandon records ns's cursorID as needing a kill against addr, without
// blocking on the network. A cursor whose BatchCursor the caller already
// closed normally should never reach here; callers typically wire this
// into a runtime finalizer for a cursor that went out of scope unclosed.
func (p *Pool) Abandon(addr address.Address, ns Namespace, cursorID int64) {
	if cursorID == 0 {
		return
	}
	p.mu.Lock()
	key := pendingKey{addr: addr, ns: ns}
	p.pending[key] = append(p.pending[key], cursorID)
	p.mu.Unlock()
}

// ReapAbandoned flushes every pending (address, namespace) group as one
// killCursors command over conns, a map from address to an
// already-selected connection to that server. Groups whose address has
// no connection available are put back for a later call.
func (p *Pool) ReapAbandoned(ctx context.Context, conns map[address.Address]connection.Connection) map[address.Address]error {
	p.mu.Lock()
	batches := p.pending
	p.pending = make(map[pendingKey][]int64)
	p.mu.Unlock()

	errs := make(map[address.Address]error)
	var leftover map[pendingKey][]int64
	for key, ids := range batches {
		conn, ok := conns[key.addr]
		if !ok {
			if leftover == nil {
				leftover = make(map[pendingKey][]int64)
			}
			leftover[key] = ids
			continue
		}
		if err := killCursorBatch(ctx, conn, key.ns, ids); err != nil {
			errs[key.addr] = err
		}
	}

	if leftover != nil {
		p.mu.Lock()
		for key, ids := range leftover {
			p.pending[key] = append(p.pending[key], ids...)
		}
		p.mu.Unlock()
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Addresses reports every server a cursor is currently pending against,
// so a reaper can select a connection to each before calling
// ReapAbandoned.
func (p *Pool) Addresses() []address.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[address.Address]bool)
	addrs := make([]address.Address, 0, len(p.pending))
	for key := range p.pending {
		if !seen[key.addr] {
			seen[key.addr] = true
			addrs = append(addrs, key.addr)
		}
	}
	return addrs
}

// Pending reports how many cursor IDs are queued against addr, for tests
// and diagnostics.
func (p *Pool) Pending(addr address.Address) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for key, ids := range p.pending {
		if key.addr == addr {
			n += len(ids)
		}
	}
	return n
}
