// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

// defaultHeartbeatInterval is the per-server isMaster cadence.
const defaultHeartbeatInterval = 10 * time.Second

// minHeartbeatInterval bounds how fast RequestImmediateCheck may force a
// rescan, so a flapping server can't spin the monitor.
const minHeartbeatInterval = 500 * time.Millisecond

// Server owns the periodic isMaster heartbeat for one node and publishes
// description.Server snapshots to the owning Topology, grounded on
// cluster.Cluster's subscribe/applyUpdate split in cluster/cluster.go,
// specialized here to a single node.
type Server struct {
	addr address.Address
	cfg  serverConfig

	desc serverBox // current snapshot, guarded by serverBox's RWMutex

	rtt       *rttMonitor
	requestCh chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	subsMu sync.Mutex
	subs   map[int64]chan description.Server
	nextID int64
}

type serverBox struct {
	mu sync.RWMutex
	v  description.Server
}

func (a *serverBox) Load() description.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

func (a *serverBox) Store(v description.Server) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

// rttMonitor tracks an exponentially weighted moving average round-trip
// time, matching how the description.Server.AverageRTT field is kept
// current between heartbeats.
type rttMonitor struct {
	mu  sync.Mutex
	avg time.Duration
	set bool
}

func (r *rttMonitor) addSample(d time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		r.avg = d
		r.set = true
	} else {
		// alpha=0.2, the same smoothing constant the legacy monitor used.
		r.avg = time.Duration(0.2*float64(d) + 0.8*float64(r.avg))
	}
	return r.avg
}

// NewServer starts a Server's background heartbeat loop and returns
// without waiting for it; the description is Unknown until the first
// heartbeat completes. Server does not hand out connections itself.
func NewServer(addr address.Address, opts ...ServerOption) *Server {
	cfg := newServerConfig(opts...)
	s := &Server{
		addr:      addr,
		cfg:       cfg,
		rtt:       &rttMonitor{},
		requestCh: make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		subs:      make(map[int64]chan description.Server),
	}
	s.desc.Store(description.Server{Addr: addr, Kind: description.Unknown})
	go s.monitorLoop()
	return s
}

// RequestImmediateCheck wakes the heartbeat loop ahead of its normal
// cadence, used after a network error or "not master" reply forces the
// server to Unknown.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.requestCh <- struct{}{}:
	default:
	}
}

// Description returns the most recently published snapshot.
func (s *Server) Description() description.Server { return s.desc.Load() }

// OpcodeFamily distinguishes the write-command protocol from the legacy
// bare-opcode one a server's advertised wire version requires.
type OpcodeFamily uint8

const (
	// CommandFamily dispatches insert/update/delete/find as OP_MSG
	// commands.
	CommandFamily OpcodeFamily = iota
	// LegacyFamily dispatches writes as bare OP_INSERT/OP_UPDATE/
	// OP_DELETE and reads as OP_QUERY, for servers that predate the
	// write-command protocol.
	LegacyFamily
)

// legacyMaxWireVersion is the highest maxWireVersion a server may
// advertise while still requiring the legacy opcode family: wire
// version 0 servers (pre-2.6) never implemented insert/update/delete as
// commands.
const legacyMaxWireVersion = 0

// SelectOpcodeFamily reports which opcode family s's last observed
// maxWireVersion requires.
func (s *Server) SelectOpcodeFamily() OpcodeFamily {
	if s.Description().MaxWireVersion <= legacyMaxWireVersion {
		return LegacyFamily
	}
	return CommandFamily
}

// Subscribe returns a channel of every subsequent description update
// and an id to later Unsubscribe with.
func (s *Server) Subscribe() (<-chan description.Server, int64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.nextID++
	id := s.nextID
	ch := make(chan description.Server, 1)
	s.subs[id] = ch
	return ch, id
}

// Unsubscribe removes a subscription created by Subscribe.
func (s *Server) Unsubscribe(id int64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Server) publish(d description.Server) {
	s.desc.Store(d)
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Stop ends the heartbeat loop. Safe to call more than once.
func (s *Server) Stop() {
	s.closeOnce.Do(func() { close(s.doneCh) })
}

func (s *Server) monitorLoop() {
	interval := s.cfg.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	timer := time.NewTimer(0) // fire immediately on start
	defer timer.Stop()

	for {
		select {
		case <-s.doneCh:
			return
		case <-timer.C:
			s.heartbeatOnce()
			timer.Reset(interval)
		case <-s.requestCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.heartbeatOnce()
			timer.Reset(interval)
		}
	}
}

// heartbeatOnce runs a single isMaster round trip and publishes the
// resulting description, or Unknown with LastError set on failure: a
// failing server is marked unknown immediately.
func (s *Server) heartbeatOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.connectTimeout())
	defer cancel()

	// Many-seed deployments would otherwise dial every node's heartbeat
	// socket at once; the shared semaphore (set by the owning Topology)
	// caps how many run concurrently.
	if s.cfg.heartbeatSem != nil {
		if err := s.cfg.heartbeatSem.Acquire(ctx, 1); err != nil {
			s.publish(description.Server{Addr: s.addr, Kind: description.Unknown, LastError: err})
			return
		}
		defer s.cfg.heartbeatSem.Release(1)
	}

	start := time.Now()
	d, err := s.cfg.checker.Check(ctx, s.addr)
	rtt := time.Since(start)

	if err != nil {
		s.publish(description.Server{
			Addr:      s.addr,
			Kind:      description.Unknown,
			LastError: err,
		})
		return
	}

	d.AverageRTT = s.rtt.addSample(rtt)
	d.AverageRTTSet = true
	d.LastUpdateTime = time.Now()
	s.publish(d)
}

// Checker runs the isMaster handshake against addr and maps the reply to
// a description.Server; the production implementation dials a
// connection.Connection per heartbeat, as a real server monitor must not
// share a socket with application traffic.
type Checker interface {
	Check(ctx context.Context, addr address.Address) (description.Server, error)
}

// ConnectionChecker is the production Checker: dial, run isMaster over
// an ephemeral connection.Connection, close it.
type ConnectionChecker struct {
	DialOptions []connection.Option
}

func (c ConnectionChecker) Check(ctx context.Context, addr address.Address) (description.Server, error) {
	conn, desc, err := connection.New(ctx, addr, c.DialOptions...)
	if err != nil {
		return description.Server{}, err
	}
	defer conn.Close()
	if desc == nil {
		return description.Server{Addr: addr, Kind: description.Unknown}, nil
	}
	return *desc, nil
}
