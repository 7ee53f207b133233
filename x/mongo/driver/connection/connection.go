// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection contains the types for building connections that
// speak the MongoDB wire protocol over a net.Conn. It purposefully hides
// the network and exposes only wiremessage.WireMessage in and out
// (grounded on core/connection/connection.go).
package connection

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/compressor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

var globalConnectionID uint64

func nextConnectionID() uint64 { return atomic.AddUint64(&globalConnectionID, 1) }

// Connection reads and writes wire protocol messages over a single
// network socket. It is not safe for concurrent use:
// pooling and synchronization are the caller's (topology.Server's)
// responsibility.
type Connection interface {
	WriteWireMessage(context.Context, wiremessage.WireMessage) error
	ReadWireMessage(context.Context) (wiremessage.WireMessage, error)
	Close() error
	Expired() bool
	Alive() bool
	ID() string
	Address() address.Address
}

// Dialer makes network connections; tests substitute a fake
// implementation via WithDialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (df DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return df(ctx, network, address)
}

// DefaultDialer is the Dialer used when no WithDialer option is given.
var DefaultDialer Dialer = &net.Dialer{}

// Handshaker performs the MongoDB handshake (hello/isMaster, and
// authentication if configured) over a freshly dialed connection,
// returning the resulting server description.
type Handshaker interface {
	Handshake(context.Context, address.Address, wiremessage.ReadWriter) (description.Server, error)
}

// HandshakerFunc adapts a function to a Handshaker.
type HandshakerFunc func(context.Context, address.Address, wiremessage.ReadWriter) (description.Server, error)

func (hf HandshakerFunc) Handshake(ctx context.Context, addr address.Address, rw wiremessage.ReadWriter) (description.Server, error) {
	return hf(ctx, addr, rw)
}

type connection struct {
	addr   address.Address
	id     string
	conn   net.Conn
	appName string

	compressor    compressor.Compressor
	compressorMap map[wiremessage.CompressorID]compressor.Compressor

	dead             bool
	idleTimeout      time.Duration
	idleDeadline     time.Time
	lifetimeDeadline time.Time
	readTimeout      time.Duration
	writeTimeout     time.Duration

	// lastRequestID is the request id of the most recently written
	// message; every reply's response_to must match it.
	lastRequestID int32

	writeBuf       []byte
	readBuf        []byte
	wireMessageBuf []byte
}

// New dials addr, optionally upgrades to TLS, then runs the configured
// handshaker. The returned description.Server is nil if no handshaker
// was provided (the case for the monitor's isolated heartbeat socket,
// which builds its own description from the hello reply directly).
func New(ctx context.Context, addr address.Address, opts ...Option) (Connection, *description.Server, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	dialCtx := ctx
	if cfg.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	nc, err := cfg.dialer.DialContext(dialCtx, addr.Network(), addr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("connection: dial %s: %w", addr, err)
	}

	if cfg.tlsConfig != nil {
		nc, err = configureTLS(ctx, nc, addr, cfg.tlsConfig)
		if err != nil {
			return nil, nil, err
		}
	}

	var lifetimeDeadline time.Time
	if cfg.lifeTimeout > 0 {
		lifetimeDeadline = time.Now().Add(cfg.lifeTimeout)
	}

	compressorMap := make(map[wiremessage.CompressorID]compressor.Compressor, len(cfg.compressors))
	for _, c := range cfg.compressors {
		compressorMap[c.CompressorID()] = c
	}

	c := &connection{
		id:               fmt.Sprintf("%s[-%d]", addr, nextConnectionID()),
		conn:             nc,
		addr:             addr,
		appName:          cfg.appName,
		compressorMap:    compressorMap,
		idleTimeout:      cfg.idleTimeout,
		lifetimeDeadline: lifetimeDeadline,
		readTimeout:      cfg.readTimeout,
		writeTimeout:     cfg.writeTimeout,
		readBuf:          make([]byte, 256),
		writeBuf:         make([]byte, 0, 256),
		wireMessageBuf:   make([]byte, 0, 256),
	}
	c.bumpIdleDeadline()

	var desc *description.Server
	if cfg.handshaker != nil {
		d, err := cfg.handshaker.Handshake(ctx, c.addr, c)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		if len(d.Compression) > 0 {
		clientLoop:
			for _, comp := range cfg.compressors {
				for _, serverMethod := range d.Compression {
					if comp.Name() == serverMethod {
						c.compressor = comp
						break clientLoop
					}
				}
			}
		}
		desc = &d
	}

	return c, desc, nil
}

func (c *connection) Address() address.Address { return c.addr }

func (c *connection) Alive() bool { return !c.dead }

func (c *connection) Expired() bool {
	now := time.Now()
	if !c.idleDeadline.IsZero() && now.After(c.idleDeadline) {
		return true
	}
	if !c.lifetimeDeadline.IsZero() && now.After(c.lifetimeDeadline) {
		return true
	}
	return c.dead
}

// commandsExemptFromCompression mirrors the server handshake commands
// that must never be wrapped in OP_COMPRESSED.
func commandsExemptFromCompression(cmd string) bool {
	switch cmd {
	case "hello", "isMaster", "ismaster", "saslStart", "saslContinue", "getnonce",
		"authenticate", "createUser", "updateUser":
		return true
	default:
		return false
	}
}

func firstCommandName(wm wiremessage.WireMessage) (string, bool) {
	switch m := wm.(type) {
	case *wiremessage.Query:
		return firstKey(bsoncore.Document(m.Query))
	case *wiremessage.Msg:
		for _, s := range m.Sections {
			if s.Kind == wiremessage.MsgSectionBody {
				return firstKey(bsoncore.Document(s.Document))
			}
		}
	}
	return "", false
}

func firstKey(doc bsoncore.Document) (string, bool) {
	elems, err := doc.Elements()
	if err != nil || len(elems) == 0 {
		return "", false
	}
	return elems[0].Key(), true
}

func (c *connection) compressMessage(wm wiremessage.WireMessage) (wiremessage.WireMessage, error) {
	if name, ok := firstCommandName(wm); ok && commandsExemptFromCompression(name) {
		return wm, nil
	}

	c.wireMessageBuf = c.wireMessageBuf[:0]
	var err error
	c.wireMessageBuf, err = wm.AppendWireMessage(c.wireMessageBuf)
	if err != nil {
		return nil, err
	}

	hdr, err := wiremessage.ReadHeader(c.wireMessageBuf, 0)
	if err != nil {
		return nil, err
	}
	body := c.wireMessageBuf[wiremessage.HeaderLen:]

	compressed, err := c.compressor.CompressBytes(body, nil)
	if err != nil {
		return nil, err
	}

	return &wiremessage.Compressed{
		MsgHeader: wiremessage.Header{
			RequestID:  hdr.RequestID,
			ResponseTo: hdr.ResponseTo,
		},
		OriginalOpCode:    hdr.OpCode,
		UncompressedSize:  int32(len(body)),
		CompressorID:      c.compressor.CompressorID(),
		CompressedMessage: compressed,
	}, nil
}

func (c *connection) uncompressMessage(compressed wiremessage.Compressed) ([]byte, wiremessage.OpCode, error) {
	uncompressor, ok := c.compressorMap[compressed.CompressorID]
	if !ok {
		return nil, 0, fmt.Errorf("connection: no compressor registered for id %d", compressed.CompressorID)
	}

	body, err := uncompressor.UncompressBytes(compressed.CompressedMessage, make([]byte, 0, compressed.UncompressedSize))
	if err != nil {
		return nil, 0, err
	}

	full := make([]byte, 0, wiremessage.HeaderLen+len(body))
	origHeader := wiremessage.Header{
		MessageLength: int32(wiremessage.HeaderLen + len(body)),
		RequestID:     compressed.MsgHeader.RequestID,
		ResponseTo:    compressed.MsgHeader.ResponseTo,
		OpCode:        compressed.OriginalOpCode,
	}
	full = origHeader.AppendHeader(full)
	full = append(full, body...)
	return full, origHeader.OpCode, nil
}

func (c *connection) WriteWireMessage(ctx context.Context, wm wiremessage.WireMessage) error {
	if c.dead {
		return Error{ConnectionID: c.id, message: "connection is dead"}
	}

	select {
	case <-ctx.Done():
		return Error{ConnectionID: c.id, Wrapped: ctx.Err(), message: "failed to write"}
	default:
	}

	deadline := c.deadline(ctx, c.writeTimeout)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return Error{ConnectionID: c.id, Wrapped: err, message: "failed to set write deadline"}
	}

	toWrite := wm
	if c.compressor != nil {
		compressed, err := c.compressMessage(wm)
		if err != nil {
			return Error{ConnectionID: c.id, Wrapped: err, message: "unable to compress wire message"}
		}
		toWrite = compressed
	}

	c.writeBuf = c.writeBuf[:0]
	var err error
	c.writeBuf, err = toWrite.AppendWireMessage(c.writeBuf)
	if err != nil {
		return Error{ConnectionID: c.id, Wrapped: err, message: "unable to encode wire message"}
	}

	if hdr, err := wiremessage.ReadHeader(c.writeBuf, 0); err == nil {
		c.lastRequestID = hdr.RequestID
	}

	if _, err := c.conn.Write(c.writeBuf); err != nil {
		c.Close()
		return Error{ConnectionID: c.id, Wrapped: err, message: "unable to write wire message to network"}
	}

	c.bumpIdleDeadline()
	return nil
}

func (c *connection) ReadWireMessage(ctx context.Context) (wiremessage.WireMessage, error) {
	if c.dead {
		return nil, Error{ConnectionID: c.id, message: "connection is dead"}
	}

	select {
	case <-ctx.Done():
		c.Close()
		return nil, Error{ConnectionID: c.id, Wrapped: ctx.Err(), message: "failed to read"}
	default:
	}

	deadline := c.deadline(ctx, c.readTimeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, Error{ConnectionID: c.id, Wrapped: err, message: "failed to set read deadline"}
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		c.Close()
		return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to decode message length"}
	}
	size := int32(sizeBuf[0]) | int32(sizeBuf[1])<<8 | int32(sizeBuf[2])<<16 | int32(sizeBuf[3])<<24

	if size < wiremessage.HeaderLen || size > wiremessage.MaxMessageSize {
		c.Close()
		return nil, Error{
			ConnectionID: c.id,
			Wrapped:      wiremessage.ProtocolError{Message: fmt.Sprintf("invalid msg_len %d", size), Wrapped: wiremessage.ErrInvalidMessageLength},
			message:      "message length out of range",
		}
	}

	if cap(c.readBuf) < int(size) {
		c.readBuf = make([]byte, size)
	} else {
		c.readBuf = c.readBuf[:size]
	}
	copy(c.readBuf, sizeBuf[:])

	if _, err := io.ReadFull(c.conn, c.readBuf[4:]); err != nil {
		c.Close()
		return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to read full message"}
	}

	hdr, err := wiremessage.ReadHeader(c.readBuf, 0)
	if err != nil {
		c.Close()
		return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to decode header"}
	}

	// Requests complete in submission order on a connection; an exhaust
	// stream keeps replying to the original request, so the id written
	// last stays the one to match.
	if hdr.ResponseTo != c.lastRequestID {
		c.Close()
		return nil, Error{
			ConnectionID: c.id,
			Wrapped:      wiremessage.ProtocolError{Message: fmt.Sprintf("response_to %d does not match request_id %d", hdr.ResponseTo, c.lastRequestID)},
			message:      "unsolicited or out-of-order server reply",
		}
	}

	toDecode := c.readBuf
	opcode := hdr.OpCode
	if hdr.OpCode == wiremessage.OpCompressed {
		var compressed wiremessage.Compressed
		if err := compressed.UnmarshalWireMessage(c.readBuf); err != nil {
			c.Close()
			return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to decode OP_COMPRESSED"}
		}
		toDecode, opcode, err = c.uncompressMessage(compressed)
		if err != nil {
			c.Close()
			return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to uncompress message"}
		}
	}

	var wm wiremessage.WireMessage
	switch opcode {
	case wiremessage.OpMsg:
		var m wiremessage.Msg
		if err := m.UnmarshalWireMessage(toDecode); err != nil {
			c.Close()
			return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to decode OP_MSG"}
		}
		wm = &m
	case wiremessage.OpReply:
		var r wiremessage.Reply
		if err := r.UnmarshalWireMessage(toDecode); err != nil {
			c.Close()
			return nil, Error{ConnectionID: c.id, Wrapped: err, message: "unable to decode OP_REPLY"}
		}
		wm = &r
	default:
		c.Close()
		return nil, Error{ConnectionID: c.id, message: fmt.Sprintf("opcode %s not implemented for decode", opcode)}
	}

	c.bumpIdleDeadline()
	return wm, nil
}

func (c *connection) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	return deadline
}

func (c *connection) bumpIdleDeadline() {
	if c.idleTimeout > 0 {
		c.idleDeadline = time.Now().Add(c.idleTimeout)
	}
}

func (c *connection) Close() error {
	if c.dead {
		return nil
	}
	c.dead = true
	if err := c.conn.Close(); err != nil {
		return Error{ConnectionID: c.id, Wrapped: err, message: "failed to close net.Conn"}
	}
	return nil
}

func (c *connection) ID() string { return c.id }
