// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package session provides the logical-session plumbing retryable
// writes need: a session identifier, a monotonic transaction counter,
// and a cluster clock used to gossip $clusterTime (grounded on
// core/dispatch/insert.go's session.Pool/session.Client usage).
package session

import (
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-go-driver-core/internal/uuid"
	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
)

// Type distinguishes an implicit session (created by the driver for a
// single operation) from one explicitly started by the application.
type Type uint8

const (
	Implicit Type = iota
	Explicit
)

// ClusterClock tracks the highest $clusterTime document the client has
// observed from any server, gossiped back on every subsequent command.
type ClusterClock struct {
	mu  sync.Mutex
	max bsoncore.Document
}

// AdvanceClusterTime updates the clock if candidate is newer than what's
// currently held. Comparison is on the embedded "clusterTime" timestamp.
func (c *ClusterClock) AdvanceClusterTime(candidate bsoncore.Document) {
	if candidate == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max == nil || clusterTimeOf(candidate) > clusterTimeOf(c.max) {
		c.max = candidate
	}
}

// GetClusterTime returns the most recently observed $clusterTime, or nil
// if none has been observed yet.
func (c *ClusterClock) GetClusterTime() bsoncore.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

func clusterTimeOf(doc bsoncore.Document) uint64 {
	v, err := doc.LookupErr("clusterTime")
	if err != nil {
		return 0
	}
	t, i, ok := v.TimestampOK()
	if !ok {
		return 0
	}
	return uint64(t)<<32 | uint64(i)
}

// Pool hands out and reclaims server session IDs so that implicit
// sessions don't leak one logical session per operation.
type Pool struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

// NewPool constructs an empty session ID pool.
func NewPool() *Pool { return &Pool{} }

// GetSession returns a reusable session ID if one is free, else mints a
// new one.
func (p *Pool) GetSession() (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.ids); n > 0 {
		id := p.ids[n-1]
		p.ids = p.ids[:n-1]
		return id, nil
	}
	return uuid.New()
}

// ReturnSession releases id back to the pool for reuse.
func (p *Pool) ReturnSession(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

// Client is a logical session bound to a single client/topology, used by
// the write coordinator to support retryable writes and causal
// consistency.
type Client struct {
	SessionID uuid.UUID
	ClusterClock *ClusterClock
	SessionType  Type

	pool *Pool
	txn  int64
}

// NewClientSession starts a new logical session drawn from pool.
func NewClientSession(pool *Pool, clock *ClusterClock, sessionType Type) (*Client, error) {
	id, err := pool.GetSession()
	if err != nil {
		return nil, err
	}
	return &Client{SessionID: id, ClusterClock: clock, SessionType: sessionType, pool: pool}, nil
}

// IncrementTxnNumber bumps the per-session transaction counter ahead of
// a retryable write attempt.
func (c *Client) IncrementTxnNumber() int64 {
	return atomic.AddInt64(&c.txn, 1)
}

// TxnNumber returns the current transaction counter without advancing it.
func (c *Client) TxnNumber() int64 {
	return atomic.LoadInt64(&c.txn)
}

// EndSession returns the session ID to its pool. Implicit sessions are
// always ended by the operation that created them; explicit sessions are
// ended by the application.
func (c *Client) EndSession() {
	if c.pool != nil {
		c.pool.ReturnSession(c.SessionID)
	}
}
