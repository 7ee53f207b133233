// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package session

import (
	"testing"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
)

func clusterTimeDoc(t *testing.T, seconds, inc uint32) bsoncore.Document {
	t.Helper()
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendTimestampElement("clusterTime", seconds, inc); err != nil {
		t.Fatalf("AppendTimestampElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return doc
}

func TestClusterClockAdvancesOnlyForward(t *testing.T) {
	t.Parallel()

	clock := &ClusterClock{}
	if got := clock.GetClusterTime(); got != nil {
		t.Fatalf("GetClusterTime on a fresh clock = %v, want nil", got)
	}

	older := clusterTimeDoc(t, 100, 1)
	newer := clusterTimeDoc(t, 100, 2)

	clock.AdvanceClusterTime(newer)
	clock.AdvanceClusterTime(older)

	got := clock.GetClusterTime()
	if got == nil {
		t.Fatalf("GetClusterTime = nil after AdvanceClusterTime")
	}
	gotSeconds, gotInc, ok := bsoncore.Document(got).Lookup("clusterTime").TimestampOK()
	if !ok {
		t.Fatalf("clusterTime field was not a Timestamp")
	}
	if gotSeconds != 100 || gotInc != 2 {
		t.Fatalf("clock stayed at the earlier value: got (%d,%d), want (100,2) (AdvanceClusterTime must never move backward)", gotSeconds, gotInc)
	}
}

func TestClusterClockIgnoresNilCandidate(t *testing.T) {
	t.Parallel()

	clock := &ClusterClock{}
	clock.AdvanceClusterTime(clusterTimeDoc(t, 5, 0))
	clock.AdvanceClusterTime(nil)

	got := clock.GetClusterTime()
	if got == nil {
		t.Fatalf("GetClusterTime = nil, want the previously observed document preserved")
	}
}

func TestPoolReusesReturnedSessionIDs(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	id, err := pool.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	pool.ReturnSession(id)

	reused, err := pool.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reused != id {
		t.Fatalf("GetSession after a return minted a fresh id instead of reusing %v", id)
	}
}

func TestClientSessionIncrementTxnNumberMonotonic(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	clock := &ClusterClock{}
	c, err := NewClientSession(pool, clock, Explicit)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	if got := c.TxnNumber(); got != 0 {
		t.Fatalf("TxnNumber on a fresh session = %d, want 0", got)
	}
	first := c.IncrementTxnNumber()
	second := c.IncrementTxnNumber()
	if first != 1 || second != 2 {
		t.Fatalf("IncrementTxnNumber sequence = %d, %d, want 1, 2", first, second)
	}
}

func TestEndSessionReturnsIDToPool(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	clock := &ClusterClock{}
	c, err := NewClientSession(pool, clock, Implicit)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	id := c.SessionID
	c.EndSession()

	reused, err := pool.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reused != id {
		t.Fatalf("EndSession did not return %v to the pool", id)
	}
}
