// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongo is the application-facing façade: Client/Database/
// Collection/Cursor wrap the x/mongo/driver layers behind a collection-
// oriented API, in the style of mongo/mongo.go, mongo/client.go,
// mongo/database.go, and mongo/collection.go.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-go-driver-core/internal/logger"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/auth"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/compressor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connstring"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/operation"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/topology"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// abandonedCursorReapInterval is how often a Client flushes cursors its
// finalizers marked abandoned (cursor.go's runtime.SetFinalizer hook).
const abandonedCursorReapInterval = time.Minute

// Client is a handle onto one MongoDB deployment's topology monitor.
type Client struct {
	topology     *topology.Topology
	clock        *session.ClusterClock
	sessionPool  *session.Pool
	writeConcern *writeconcern.WriteConcern
	logger       *logger.Logger
	cursorPool   *batchcursor.Pool
	reapStop     chan struct{}
}

// Connect parses uri, starts the topology monitor, and returns a ready
// Client. It does not block for the first heartbeat; the first operation
// to need a server waits out server selection itself.
func Connect(ctx context.Context, uri string) (*Client, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	var cred *auth.Credential
	if cs.Username != "" {
		cred = &auth.Credential{
			Source:      cs.AuthSource,
			Username:    cs.Username,
			Password:    cs.Password,
			Mechanism:   cs.AuthMechanism,
			PasswordSet: cs.PasswordSet,
		}
		if cred.Source == "" {
			cred.Source = "admin"
			if cs.Database != "" {
				cred.Source = cs.Database
			}
		}
	}

	compressors := compressor.SupportedCompressors(cs.Compressors...)

	handshaker := operation.Handshaker{
		AppName:     cs.AppName,
		Compressors: compressors,
		Credential:  cred,
	}

	connOpts := []connection.Option{
		connection.WithHandshaker(connection.HandshakerFunc(handshaker.Handshake)),
		connection.WithAppName(cs.AppName),
		connection.WithCompressors(compressors...),
	}
	if cs.ConnectTimeout > 0 {
		connOpts = append(connOpts, connection.WithConnectTimeout(cs.ConnectTimeout))
	}

	topoOpts := []topology.Option{
		topology.WithSeedList(cs.Hosts...),
		topology.WithConnectionOptions(connOpts...),
		topology.WithServerOptions(topology.WithChecker(topology.ConnectionChecker{DialOptions: connOpts})),
	}
	if cs.ReplicaSet != "" {
		topoOpts = append(topoOpts, topology.WithMode(topology.ReplicaSetMode), topology.WithReplicaSetName(cs.ReplicaSet))
	} else if cs.DirectConnection || len(cs.Hosts) == 1 {
		topoOpts = append(topoOpts, topology.WithMode(topology.SingleMode))
	}
	if cs.ServerSelectionTimeout > 0 {
		topoOpts = append(topoOpts, topology.WithServerSelectionTimeout(cs.ServerSelectionTimeout))
	}
	if cs.HeartbeatInterval > 0 {
		topoOpts = append(topoOpts, topology.WithServerOptions(topology.WithHeartbeatInterval(cs.HeartbeatInterval)))
	}

	topo := topology.New(topoOpts...)

	var wc *writeconcern.WriteConcern
	switch {
	case cs.WNumberSet:
		wc = &writeconcern.WriteConcern{W: cs.WNumber}
	case cs.W != "":
		wc = &writeconcern.WriteConcern{W: cs.W}
	}
	if wc != nil {
		if cs.WTimeout > 0 {
			wc.WTimeout = cs.WTimeout
		}
		if cs.JournalSet {
			j := cs.Journal
			wc.Journal = &j
		}
	}

	log := logger.New(nil, 0, nil)
	logger.StartPrintListener(log)

	client := &Client{
		topology:     topo,
		clock:        &session.ClusterClock{},
		sessionPool:  session.NewPool(),
		writeConcern: wc,
		logger:       log,
		cursorPool:   batchcursor.NewPool(),
		reapStop:     make(chan struct{}),
	}
	go client.reapAbandonedCursors()
	return client, nil
}

// Disconnect stops the topology monitor, the abandoned-cursor reaper, and
// the logger's print listener.
func (c *Client) Disconnect(ctx context.Context) error {
	close(c.reapStop)
	c.topology.Close()
	c.logger.Close()
	return nil
}

// reapAbandonedCursors periodically kills server-side cursors whose
// mongo.Cursor was garbage collected without an explicit Close
// (cursor.go's finalizer feeds c.cursorPool via abandonCursor).
func (c *Client) reapAbandonedCursors() {
	ticker := time.NewTicker(abandonedCursorReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.reapStop:
			return
		case <-ticker.C:
			addrs := c.cursorPool.Addresses()
			if len(addrs) == 0 {
				continue
			}
			ctx := context.Background()
			conns := make(map[address.Address]connection.Connection, len(addrs))
			for _, addr := range addrs {
				conn, _, err := c.topology.SelectServer(ctx, addressSelector(addr))
				if err != nil {
					continue
				}
				conns[addr] = conn
			}
			c.cursorPool.ReapAbandoned(ctx, conns)
			for _, conn := range conns {
				conn.Close()
			}
		}
	}
}

// addressSelector picks the single server matching addr, used by the
// abandoned-cursor reaper to get a connection to a specific server
// rather than letting read preference pick one for it.
func addressSelector(addr address.Address) description.ServerSelector {
	return description.ServerSelectorFunc(func(_ description.Topology, candidates []description.Server) ([]description.Server, error) {
		for _, s := range candidates {
			if s.Addr == addr {
				return []description.Server{s}, nil
			}
		}
		return nil, nil
	})
}

// Database returns a handle for the named database.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// StartSession checks out a logical session from the client's pool.
func (c *Client) StartSession() (*session.Client, error) {
	return session.NewClientSession(c.sessionPool, c.clock, session.Explicit)
}

// abandonCursor queues a cursor's id for a later coalesced killCursors
// instead of killing it inline, for use from a finalizer where blocking
// on the network isn't an option.
func (c *Client) abandonCursor(addr address.Address, ns batchcursor.Namespace, cursorID int64) {
	c.cursorPool.Abandon(addr, ns, cursorID)
}

func (c *Client) logCommandStarted(name, db string, reqID int32, cmd string) {
	c.logger.Print(logger.LevelDebug, logger.CommandStartedMessage{
		CommandName: name, DatabaseName: db, RequestID: reqID, Command: cmd,
	})
}

func (c *Client) logCommandSucceeded(name string, reqID int32, start time.Time) {
	c.logger.Print(logger.LevelDebug, logger.CommandSucceededMessage{
		CommandName: name, RequestID: reqID, DurationMS: time.Since(start).Milliseconds(),
	})
}

func (c *Client) logCommandFailed(name string, reqID int32, start time.Time, err error) {
	c.logger.Print(logger.LevelDebug, logger.CommandFailedMessage{
		CommandName: name, RequestID: reqID, DurationMS: time.Since(start).Milliseconds(), Failure: err.Error(),
	})
}
