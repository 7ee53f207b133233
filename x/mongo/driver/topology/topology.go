// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology implements the cluster monitor and the SelectServer
// entry point that sits in front of it, grounded on
// cluster/cluster.go's Cluster type: a set of per-node Server monitors
// feeding description updates into one shared-immutable-after-publication
// description.Topology, with waiters woken on every change.
package topology

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
	"go.mongodb.org/mongo-go-driver-core/internal/csot"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
	"golang.org/x/sync/semaphore"
)

// Topology maintains the deployment-wide view built from every seeded
// node's heartbeats, and serves description.ServerSelector queries
// against it.
type Topology struct {
	cfg topologyConfig

	heartbeatSem *semaphore.Weighted

	mu      sync.Mutex
	servers map[address.Address]*Server
	desc    description.Topology

	lastWaiterID int64
	waiterMu     sync.Mutex
	waiters      map[int64]chan struct{}

	done chan struct{}
}

// New constructs a Topology from a seed list and starts one Server
// heartbeat monitor per seed.
func New(opts ...Option) *Topology {
	cfg := newTopologyConfig(opts...)

	t := &Topology{
		cfg:          cfg,
		heartbeatSem: semaphore.NewWeighted(cfg.maxConcurrentHeartbeats),
		servers:      make(map[address.Address]*Server),
		desc:         description.Topology{Kind: startingKind(cfg.mode), SetName: cfg.setName},
		waiters:      make(map[int64]chan struct{}),
		done:         make(chan struct{}),
	}

	for _, s := range cfg.seedlist {
		t.addServer(address.Address(s).Canonicalize())
	}
	t.rebuildDesc()
	return t
}

func startingKind(mode Mode) description.Kind {
	switch mode {
	case SingleMode:
		return description.KindSingle
	case ReplicaSetMode:
		return description.KindReplicaSetNoPrimary
	case ShardedMode:
		return description.KindSharded
	default:
		return description.KindUnknown
	}
}

// Close stops every per-node heartbeat monitor and wakes any pending
// waiters with a closed channel.
func (t *Topology) Close() {
	close(t.done)
	t.mu.Lock()
	for _, s := range t.servers {
		s.Stop()
	}
	t.mu.Unlock()

	t.waiterMu.Lock()
	for id, ch := range t.waiters {
		close(ch)
		delete(t.waiters, id)
	}
	t.waiterMu.Unlock()
}

// Description returns the current shared-immutable snapshot.
func (t *Topology) Description() description.Topology {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc
}

func (t *Topology) addServer(addr address.Address) *Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.servers[addr]; ok {
		return s
	}
	opts := append(append([]ServerOption(nil), t.cfg.serverOpts...), WithHeartbeatSemaphore(t.heartbeatSem))
	s := NewServer(addr, opts...)
	t.servers[addr] = s
	go t.watchServer(s)
	return s
}

func (t *Topology) watchServer(s *Server) {
	updates, id := s.Subscribe()
	defer s.Unsubscribe(id)
	for {
		select {
		case <-t.done:
			return
		case d, ok := <-updates:
			if !ok {
				return
			}
			t.applyServerDescription(d)
		}
	}
}

// applyServerDescription folds one node's new description into the
// topology-wide view, unions any newly
// discovered hosts into the monitored address set, and wakes waiters.
func (t *Topology) applyServerDescription(d description.Server) {
	t.mu.Lock()

	servers := make(map[address.Address]description.Server, len(t.servers))
	for addr, s := range t.servers {
		if addr == d.Addr {
			servers[addr] = d
		} else {
			servers[addr] = s.Description()
		}
	}

	kind, maxElectionID, maxSetVersion := classify(t.cfg, servers, t.desc.MaxElectionID, t.desc.MaxSetVersion)

	var newHosts []address.Address
	if d.Kind == description.RSPrimary {
		for _, host := range d.Addresses() {
			addr := address.Address(host).Canonicalize()
			if _, ok := t.servers[addr]; !ok {
				newHosts = append(newHosts, addr)
			}
		}
		for addr, s := range t.servers {
			if addr == d.Addr {
				continue
			}
			if !containsAddr(d.Addresses(), string(addr)) {
				s.Stop()
				delete(t.servers, addr)
				delete(servers, addr)
			}
		}
	}

	flat := make([]description.Server, 0, len(servers))
	for _, s := range servers {
		flat = append(flat, s)
	}
	t.desc = description.Topology{
		Kind:          kind,
		Servers:       flat,
		SetName:       t.cfg.setName,
		MaxElectionID: maxElectionID,
		MaxSetVersion: maxSetVersion,
	}
	t.mu.Unlock()

	for _, addr := range newHosts {
		t.addServer(addr)
	}

	t.wakeWaiters()
}

func containsAddr(hosts []string, addr string) bool {
	for _, h := range hosts {
		if h == addr {
			return true
		}
	}
	return false
}

// classify derives the overall topology Kind from the set of observed
// server kinds, and advances the stale-primary
// rejection watermark (max electionId/setVersion) whenever a newer
// primary is observed.
func classify(cfg topologyConfig, servers map[address.Address]description.Server, maxElectionID primitive.ObjectID, maxSetVersion uint32) (description.Kind, primitive.ObjectID, uint32) {
	if cfg.mode == SingleMode {
		return description.KindSingle, maxElectionID, maxSetVersion
	}

	var sawPrimary, sawSecondary, sawMongos bool
	for _, s := range servers {
		switch s.Kind {
		case description.RSPrimary:
			if s.SetVersion < maxSetVersion || (s.SetVersion == maxSetVersion && electionIDGreater(maxElectionID, s.ElectionID)) {
				// stale primary: a newer (setVersion, electionId) has
				// already been observed, so this node lost an election it
				// hasn't noticed yet.
				continue
			}
			sawPrimary = true
			maxElectionID = s.ElectionID
			maxSetVersion = s.SetVersion
		case description.RSSecondary, description.RSArbiter, description.RSGhost, description.RSMember:
			sawSecondary = true
		case description.Mongos:
			sawMongos = true
		}
	}

	switch {
	case cfg.mode == ShardedMode || sawMongos:
		return description.KindSharded, maxElectionID, maxSetVersion
	case sawPrimary:
		return description.KindReplicaSetWithPrimary, maxElectionID, maxSetVersion
	case sawSecondary:
		return description.KindReplicaSetNoPrimary, maxElectionID, maxSetVersion
	default:
		return description.KindUnknown, maxElectionID, maxSetVersion
	}
}

func electionIDGreater(a, b primitive.ObjectID) bool {
	return string(a[:]) > string(b[:])
}

func (t *Topology) rebuildDesc() {
	t.mu.Lock()
	servers := make(map[address.Address]description.Server, len(t.servers))
	for addr, s := range t.servers {
		servers[addr] = s.Description()
	}
	kind, maxElectionID, maxSetVersion := classify(t.cfg, servers, t.desc.MaxElectionID, t.desc.MaxSetVersion)
	flat := make([]description.Server, 0, len(servers))
	for _, s := range servers {
		flat = append(flat, s)
	}
	t.desc = description.Topology{Kind: kind, Servers: flat, SetName: t.cfg.setName, MaxElectionID: maxElectionID, MaxSetVersion: maxSetVersion}
	t.mu.Unlock()
}

func (t *Topology) awaitUpdates() (<-chan struct{}, int64) {
	id := atomic.AddInt64(&t.lastWaiterID, 1)
	ch := make(chan struct{}, 1)
	t.waiterMu.Lock()
	t.waiters[id] = ch
	t.waiterMu.Unlock()
	return ch, id
}

func (t *Topology) removeWaiter(id int64) {
	t.waiterMu.Lock()
	delete(t.waiters, id)
	t.waiterMu.Unlock()
}

func (t *Topology) wakeWaiters() {
	t.waiterMu.Lock()
	for _, ch := range t.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	t.waiterMu.Unlock()
}

// SelectServer runs selector against repeated topology snapshots until a
// match appears or the selection timeout elapses. A
// zero-candidate scan immediately requests a fresh heartbeat round from
// every monitored server rather than waiting out the full interval.
func (t *Topology) SelectServer(ctx context.Context, selector description.ServerSelector) (connection.Connection, *description.Server, error) {
	ctx, cancel := csot.WithServerSelectionTimeout(ctx, t.cfg.serverSelectionTimeout)
	defer cancel()

	updated, id := t.awaitUpdates()
	defer t.removeWaiter(id)

	for {
		desc := t.Description()
		suitable, err := selector.SelectServer(desc, desc.Servers)
		if err != nil {
			return nil, nil, ServerSelectionError{Wrapped: err, Topology: desc}
		}

		if len(suitable) > 0 {
			chosen := t.pickWithinWindow(suitable)
			t.mu.Lock()
			s, ok := t.servers[chosen.Addr]
			t.mu.Unlock()
			if ok {
				return t.connect(ctx, s)
			}
			continue
		}

		t.requestImmediateCheck()

		select {
		case <-ctx.Done():
			return nil, nil, ServerSelectionError{Topology: desc}
		case <-updated:
		}
	}
}

// pickWithinWindow narrows suitable to the servers whose RTT sits within
// localThreshold of the fastest, then picks one uniformly at random —
// never the first, which would herd every client onto the same node.
func (t *Topology) pickWithinWindow(suitable []description.Server) description.Server {
	window := readpref.WithinLatencyWindow(suitable, t.cfg.localThreshold)
	return window[rand.Intn(len(window))]
}

func (t *Topology) requestImmediateCheck() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.servers {
		s.RequestImmediateCheck()
	}
}

// connect dials a fresh application connection.Connection to s's
// address. The core never pools connections itself; each SelectServer
// result is a new socket the caller is responsible for closing.
func (t *Topology) connect(ctx context.Context, s *Server) (connection.Connection, *description.Server, error) {
	d := s.Description()
	if d.Kind == description.Unknown {
		return nil, nil, errors.New("topology: selected server is unknown")
	}
	conn, desc, err := connection.New(ctx, s.addr, t.cfg.connectionOpts...)
	if err != nil {
		s.RequestImmediateCheck()
		return nil, nil, err
	}
	if desc == nil {
		desc = &d
	}
	return conn, desc, nil
}

// SupportsSessions reports whether every data-bearing server has
// advertised a logicalSessionTimeoutMinutes, gating retryable-write
// eligibility. Left false here: session timeout isn't tracked on
// description.Server by this core's reduced handshake reply, so callers
// must not rely on it for session support detection; retained as a
// documented limitation rather than a fabricated always-true stub.
func (t *Topology) SupportsSessions() bool { return false }
