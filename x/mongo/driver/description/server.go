// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the data model for per-server and
// per-topology descriptions built from isMaster/hello replies.
package description

import (
	"time"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
)

// ServerKind classifies a single node's role within its deployment.
type ServerKind uint32

const (
	Unknown ServerKind = iota
	Standalone
	RSPrimary
	RSSecondary
	RSArbiter
	RSGhost
	RSMember
	Mongos
	LoadBalancer
)

func (k ServerKind) String() string {
	switch k {
	case Standalone:
		return "Standalone"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSGhost:
		return "RSGhost"
	case RSMember:
		return "RSMember"
	case Mongos:
		return "Mongos"
	case LoadBalancer:
		return "LoadBalancer"
	default:
		return "Unknown"
	}
}

// Server is the per-node description tracked by the Topology monitor.
// Topology owns every Server value; a SelectedServer below is a
// lightweight snapshot handed to callers.
type Server struct {
	Addr address.Address

	Kind ServerKind

	AverageRTT    time.Duration
	AverageRTTSet bool
	LastWriteTime time.Time
	LastUpdateTime time.Time
	HeartbeatInterval time.Duration

	SetName    string
	SetVersion uint32
	ElectionID primitive.ObjectID

	Hosts    []string
	Passives []string
	Arbiters []string
	Primary  address.Address
	Me       string
	Tags     TagSet

	MaxBatchCount   uint32
	MaxDocumentSize uint32
	MaxMessageSize  uint32
	MinWireVersion  int32
	MaxWireVersion  int32

	Compression []string

	LastError error
}

// Addresses returns every address this server's isMaster reply named as
// a member of the deployment, used to union the topology's address set.
func (s Server) Addresses() []string {
	all := make([]string, 0, len(s.Hosts)+len(s.Passives)+len(s.Arbiters))
	all = append(all, s.Hosts...)
	all = append(all, s.Passives...)
	all = append(all, s.Arbiters...)
	return all
}

// DataBearing reports whether this server kind can serve reads/writes
// (excludes arbiters and ghost members).
func (s Server) DataBearing() bool {
	switch s.Kind {
	case Standalone, RSPrimary, RSSecondary, Mongos, LoadBalancer:
		return true
	default:
		return false
	}
}

// Stale reports whether a secondary's replication lag exceeds
// maxStaleness. primaryLastWrite/heartbeat are
// the topology's most recently observed primary timings; for topologies
// without a primary, the freshest secondary is used instead (not
// modeled here; callers supply the comparison point).
func (s Server) Stale(maxStaleness time.Duration, primaryLastWrite time.Time, heartbeatInterval time.Duration) bool {
	if maxStaleness <= 0 {
		return false
	}
	staleness := primaryLastWrite.Sub(s.LastWriteTime) + heartbeatInterval - s.HeartbeatInterval
	return staleness > maxStaleness
}

// TagSet is a set of key/value tags advertised by a server, used for
// tag-aware read-preference filtering.
type TagSet map[string]string

// ContainsAll reports whether ts has every key/value pair in other.
func (ts TagSet) ContainsAll(other TagSet) bool {
	for k, v := range other {
		if ts[k] != v {
			return false
		}
	}
	return true
}

// SelectedServer is a point-in-time snapshot of a Server plus the
// cluster-wide limits a write command must respect when batching
//, named to mirror core/command's SelectedServer usage.
type SelectedServer struct {
	Server
	Kind Kind
}
