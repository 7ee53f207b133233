// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
	"golang.org/x/sync/semaphore"
)

const defaultServerSelectionTimeout = 30 * time.Second

type serverConfig struct {
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	checker           Checker
	heartbeatSem      *semaphore.Weighted
}

func (c serverConfig) connectTimeout() time.Duration {
	if c.heartbeatTimeout > 0 {
		return c.heartbeatTimeout
	}
	return defaultHeartbeatInterval
}

func newServerConfig(opts ...ServerOption) serverConfig {
	cfg := serverConfig{
		heartbeatInterval: defaultHeartbeatInterval,
		checker:           ConnectionChecker{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ServerOption configures a single Server's heartbeat monitor.
type ServerOption func(*serverConfig)

// WithHeartbeatInterval overrides the default 10s cadence.
func WithHeartbeatInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.heartbeatInterval = d }
}

// WithHeartbeatTimeout bounds a single isMaster round trip.
func WithHeartbeatTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.heartbeatTimeout = d }
}

// WithChecker overrides how a heartbeat is performed, mainly for tests
// that want to avoid real sockets.
func WithChecker(c Checker) ServerOption {
	return func(cfg *serverConfig) { cfg.checker = c }
}

// WithHeartbeatSemaphore bounds how many of this server's heartbeats may
// run concurrently with heartbeats of other servers sharing sem, to
// bound concurrent heartbeats across many seed servers.
func WithHeartbeatSemaphore(sem *semaphore.Weighted) ServerOption {
	return func(cfg *serverConfig) { cfg.heartbeatSem = sem }
}

// defaultMaxConcurrentHeartbeats bounds how many per-server heartbeats a
// Topology runs at once, so seeding dozens of hosts doesn't open dozens
// of sockets in the same instant.
const defaultMaxConcurrentHeartbeats = 10

type topologyConfig struct {
	mode                    Mode
	setName                 string
	seedlist                []string
	serverSelectionTimeout  time.Duration
	serverOpts              []ServerOption
	connectionOpts          []connection.Option
	maxConcurrentHeartbeats int64
	localThreshold          time.Duration
}

func newTopologyConfig(opts ...Option) topologyConfig {
	cfg := topologyConfig{
		mode:                    AutomaticMode,
		serverSelectionTimeout:  defaultServerSelectionTimeout,
		maxConcurrentHeartbeats: defaultMaxConcurrentHeartbeats,
		localThreshold:          readpref.DefaultLocalThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Mode selects how a Topology classifies itself: automatically from
// observed server roles, or pinned to a single known shape.
type Mode uint8

const (
	AutomaticMode Mode = iota
	SingleMode
	ReplicaSetMode
	ShardedMode
)

// Option configures a Topology constructed via New.
type Option func(*topologyConfig)

// WithMode pins the topology's classification mode instead of inferring
// it from server roles (the mongos/standalone "direct connection" cases).
func WithMode(m Mode) Option {
	return func(c *topologyConfig) { c.mode = m }
}

// WithReplicaSetName only accepts servers reporting this set name.
func WithReplicaSetName(name string) Option {
	return func(c *topologyConfig) { c.setName = name }
}

// WithSeedList sets the initial address set to monitor.
func WithSeedList(addrs ...string) Option {
	return func(c *topologyConfig) { c.seedlist = addrs }
}

// WithServerSelectionTimeout bounds how long SelectServer waits for a
// suitable server to appear.
func WithServerSelectionTimeout(d time.Duration) Option {
	return func(c *topologyConfig) { c.serverSelectionTimeout = d }
}

// WithServerOptions forwards options to every per-node Server the
// topology creates.
func WithServerOptions(opts ...ServerOption) Option {
	return func(c *topologyConfig) { c.serverOpts = append(c.serverOpts, opts...) }
}

// WithConnectionOptions forwards options to every application
// connection.Connection dialed by SelectServer.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(c *topologyConfig) { c.connectionOpts = append(c.connectionOpts, opts...) }
}

// WithMaxConcurrentHeartbeats bounds how many of this topology's servers
// may run their heartbeat at the same instant.
func WithMaxConcurrentHeartbeats(n int64) Option {
	return func(c *topologyConfig) { c.maxConcurrentHeartbeats = n }
}

// WithLocalThreshold widens (or narrows) the RTT window around the
// fastest eligible server within which SelectServer picks uniformly at
// random. Defaults to 15ms.
func WithLocalThreshold(d time.Duration) Option {
	return func(c *topologyConfig) { c.localThreshold = d }
}
