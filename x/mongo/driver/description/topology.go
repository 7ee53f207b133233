// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import "go.mongodb.org/mongo-go-driver-core/bson/primitive"

// Kind classifies the deployment shape as a whole.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindSingle
	KindReplicaSetWithPrimary
	KindReplicaSetNoPrimary
	KindSharded
	KindLoadBalanced
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "Single"
	case KindReplicaSetWithPrimary:
		return "ReplicaSetWithPrimary"
	case KindReplicaSetNoPrimary:
		return "ReplicaSetNoPrimary"
	case KindSharded:
		return "Sharded"
	case KindLoadBalanced:
		return "LoadBalanced"
	default:
		return "Unknown"
	}
}

// Topology is an immutable snapshot of the servers known to a client at
// a point in time.
// The monitor builds a new Topology and atomically swaps it in; readers
// never see a torn view.
type Topology struct {
	Kind       Kind
	Servers    []Server
	SetName    string
	MaxElectionID primitive.ObjectID
	MaxSetVersion uint32
	CompatibilityErr error
}

// ServerSelector picks a subset of eligible servers from a Topology
// snapshot. Implementations are pure functions over the
// snapshot; topology.SelectServer retries them against fresh snapshots
// until one succeeds or the selection timeout elapses.
type ServerSelector interface {
	SelectServer(Topology, []Server) ([]Server, error)
}

// ServerSelectorFunc adapts a function to a ServerSelector.
type ServerSelectorFunc func(Topology, []Server) ([]Server, error)

func (f ServerSelectorFunc) SelectServer(t Topology, candidates []Server) ([]Server, error) {
	return f(t, candidates)
}

// HasReadableServer reports whether the topology currently has any
// server that could serve a read, without applying a specific
// read preference; used by the monitor's zero-reachable-servers check.
func (t Topology) HasReadableServer() bool {
	for _, s := range t.Servers {
		if s.DataBearing() {
			return true
		}
	}
	return false
}

// HasWritableServer reports whether any server could serve a write
// (a primary, or any node in Single/Sharded topologies).
func (t Topology) HasWritableServer() bool {
	switch t.Kind {
	case KindSingle, KindSharded, KindLoadBalanced:
		return len(t.Servers) > 0
	default:
		for _, s := range t.Servers {
			if s.Kind == RSPrimary {
				return true
			}
		}
		return false
	}
}
