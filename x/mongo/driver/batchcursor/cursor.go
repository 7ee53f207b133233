// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package batchcursor implements the cursor lifecycle:
// Created -> HasBatch/Exhausted -> KillPending -> Closed,
// grounded on x/mongo/driverlegacy/kill_cursors.go's
// RoundTrip/legacyKillCursors split for the GET_MORE/KILL_CURSORS
// dispatch shape.
package batchcursor

import (
	"context"
	"errors"
	"strconv"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

func itoa(i int) string { return strconv.Itoa(i) }

// State names a point in the cursor lifecycle.
type State uint8

const (
	Created State = iota
	HasBatch
	Exhausted
	KillPending
	Closed
)

// BatchCursor iterates the results of a find/aggregate/getMore command
// one server-sent batch at a time. Not safe for concurrent use; exactly
// one getMore may be in flight at a time.
type BatchCursor struct {
	id       int64
	ns       Namespace
	conn     connection.Connection
	batch    []bsoncore.Document
	pos      int
	state    State
	batchSize int32
	tailable bool
	awaitData bool
	exhaust   bool
	exhausting bool
	err      error
}

// Namespace identifies the collection a cursor was opened against.
type Namespace struct {
	DB         string
	Collection string
}

// FullName returns "db.collection".
func (n Namespace) FullName() string { return n.DB + "." + n.Collection }

// New constructs a cursor already positioned at its first batch, as
// returned by the command that opened it (find/aggregate's cursor.firstBatch).
func New(conn connection.Connection, ns Namespace, cursorID int64, firstBatch []bsoncore.Document, opts ...Option) *BatchCursor {
	bc := &BatchCursor{
		id:    cursorID,
		ns:    ns,
		conn:  conn,
		batch: firstBatch,
	}
	for _, opt := range opts {
		opt(bc)
	}
	bc.state = bc.nextStateAfterBatch()
	return bc
}

// Option configures a BatchCursor constructed via New.
type Option func(*BatchCursor)

// WithBatchSize sets the batch size requested on each GET_MORE.
func WithBatchSize(n int32) Option {
	return func(bc *BatchCursor) { bc.batchSize = n }
}

// WithTailable marks the cursor tailable; exhaustion with a non-zero
// cursor_id means "end for now", not "end".
func WithTailable(awaitData bool) Option {
	return func(bc *BatchCursor) {
		bc.tailable = true
		bc.awaitData = awaitData
	}
}

// WithExhaust marks the cursor exhaust: its first getMore is sent with
// moreToCome allowed, and the server streams further batches on the
// same socket unprompted until it sends a reply without moreToCome set,
// skipping the round-trip a normal getMore needs for every batch,
// mirroring the wire protocol's exhaust streaming mode.
func WithExhaust() Option {
	return func(bc *BatchCursor) { bc.exhaust = true }
}

func (bc *BatchCursor) nextStateAfterBatch() State {
	if len(bc.batch) > 0 {
		return HasBatch
	}
	// "end for now" (tailable, id != 0) and true exhaustion both land
	// here; bc.id staying non-zero is what lets a later Next resume.
	return Exhausted
}

// ID returns the server-assigned cursor id; zero means the server has no
// more data to send.
func (bc *BatchCursor) ID() int64 { return bc.id }

// Address returns the server this cursor was opened against, for a Pool
// to key an abandoned cursor's eventual kill on.
func (bc *BatchCursor) Address() address.Address { return bc.conn.Address() }

// Namespace returns the collection this cursor iterates.
func (bc *BatchCursor) Namespace() Namespace { return bc.ns }

// Err returns the error that ended iteration, once Next has returned
// false because of one; it persists across further calls.
func (bc *BatchCursor) Err() error { return bc.err }

// Next advances to the next document in the current batch, issuing a
// GET_MORE when the batch is drained and the server may have more
// (cursor_id != 0). It returns false at true end-of-results or on error;
// for a tailable cursor with id != 0, false means "end for now" and a
// later Next call may resume.
func (bc *BatchCursor) Next(ctx context.Context) bool {
	if bc.state == Closed || bc.err != nil {
		return false
	}

	if bc.pos < len(bc.batch) {
		bc.pos++
		return true
	}

	if bc.id == 0 {
		bc.state = Exhausted
		return false
	}

	if err := bc.getMore(ctx); err != nil {
		bc.err = err
		return false
	}

	if len(bc.batch) == 0 {
		return false
	}
	bc.pos = 1
	return true
}

// Current returns a view into the document Next just advanced to. The
// view is invalidated by the next Next call; callers
// needing a longer lifetime must copy it.
func (bc *BatchCursor) Current() bsoncore.Document {
	if bc.pos == 0 || bc.pos > len(bc.batch) {
		return nil
	}
	return bc.batch[bc.pos-1]
}

func (bc *BatchCursor) getMore(ctx context.Context) error {
	var m *wiremessage.Msg

	if bc.exhaust && bc.exhausting {
		// The server already promised (moreToCome on the prior reply) to
		// keep streaming batches unprompted; skip the round-trip and
		// just read the next one off the same socket.
		reply, err := bc.conn.ReadWireMessage(ctx)
		if err != nil {
			return err
		}
		var ok bool
		m, ok = reply.(*wiremessage.Msg)
		if !ok {
			return errors.New("batchcursor: expected OP_MSG reply to exhaust stream")
		}
	} else {
		builder := bsoncore.NewDocumentBuilder()
		if err := builder.AppendInt64Element("getMore", bc.id); err != nil {
			return err
		}
		if err := builder.AppendStringElement("collection", bc.ns.Collection); err != nil {
			return err
		}
		if bc.batchSize > 0 {
			if err := builder.AppendInt32Element("batchSize", bc.batchSize); err != nil {
				return err
			}
		}
		if bc.tailable && bc.awaitData {
			if err := builder.AppendInt64Element("maxTimeMS", 1000); err != nil {
				return err
			}
		}
		if err := builder.AppendStringElement("$db", bc.ns.DB); err != nil {
			return err
		}
		cmd, _, err := builder.Finish()
		if err != nil {
			return err
		}

		msg := wiremessage.Msg{
			MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
			Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: cmd}},
		}
		if bc.exhaust {
			msg.FlagBits |= wiremessage.MsgExhaustAllowed
		}
		if err := bc.conn.WriteWireMessage(ctx, &msg); err != nil {
			return err
		}

		reply, err := bc.conn.ReadWireMessage(ctx)
		if err != nil {
			return err
		}

		var ok bool
		m, ok = reply.(*wiremessage.Msg)
		if !ok {
			return errors.New("batchcursor: expected OP_MSG reply to getMore")
		}
	}

	bc.exhausting = bc.exhaust && m.FlagBits&wiremessage.MsgMoreToCome != 0

	var body bsoncore.Document
	for _, s := range m.Sections {
		if s.Kind == wiremessage.MsgSectionBody {
			body = bsoncore.Document(s.Document)
		}
	}
	if body == nil {
		return errors.New("batchcursor: getMore reply had no body section")
	}

	cursorVal, err := body.LookupErr("cursor")
	if err != nil {
		return err
	}
	cursorDoc := cursorVal.Document()

	idVal, err := cursorDoc.LookupErr("id")
	if err != nil {
		return err
	}
	id, _ := idVal.AsInt64()

	batchKey := "nextBatch"
	batchVal, err := cursorDoc.LookupErr(batchKey)
	if err != nil {
		return err
	}
	arr := batchVal.Array()
	values, err := arr.Values()
	if err != nil {
		return err
	}

	batch := make([]bsoncore.Document, 0, len(values))
	for _, v := range values {
		batch = append(batch, v.Document())
	}

	bc.id = id
	bc.batch = batch
	bc.pos = 0
	if id == 0 {
		bc.state = Exhausted
	} else {
		bc.state = HasBatch
	}
	return nil
}

// Close sends KILL_CURSORS if the server may still hold cursor state
// (id != 0), then transitions to Closed. The kill's own failure is
// swallowed: the server reaps idle cursors after 10 minutes regardless.
func (bc *BatchCursor) Close(ctx context.Context) error {
	if bc.state == Closed {
		return nil
	}
	bc.state = KillPending

	if bc.id != 0 {
		_ = bc.killCursor(ctx)
	}
	bc.state = Closed
	return bc.conn.Close()
}

func (bc *BatchCursor) killCursor(ctx context.Context) error {
	return killCursorBatch(ctx, bc.conn, bc.ns, []int64{bc.id})
}

// killCursorBatch sends one killCursors command covering every id in
// ids, the coalesced form Pool.ReapAbandoned uses to collapse several
// abandoned cursors bound for the same server into a single round-trip.
func killCursorBatch(ctx context.Context, conn connection.Connection, ns Namespace, ids []int64) error {
	builder := bsoncore.NewDocumentBuilder()
	if err := builder.AppendStringElement("killCursors", ns.Collection); err != nil {
		return err
	}
	if err := builder.StartArray("cursors"); err != nil {
		return err
	}
	for i, id := range ids {
		if err := builder.AppendInt64Element(itoa(i), id); err != nil {
			return err
		}
	}
	if err := builder.FinishArray(); err != nil {
		return err
	}
	if err := builder.AppendStringElement("$db", ns.DB); err != nil {
		return err
	}
	cmd, _, err := builder.Finish()
	if err != nil {
		return err
	}

	msg := wiremessage.Msg{
		MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
		Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: cmd}},
	}
	if err := conn.WriteWireMessage(ctx, &msg); err != nil {
		return err
	}
	_, err = conn.ReadWireMessage(ctx)
	return err
}

// LegacyKillCursors issues a bare OP_KILL_CURSORS, used against servers
// whose maxWireVersion predates the killCursors command, grounded on
// driverlegacy's legacyKillCursors.
func LegacyKillCursors(ctx context.Context, conn connection.Connection, ns Namespace, cursorID int64) error {
	kc := wiremessage.KillCursors{
		MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
		CursorIDs: []int64{cursorID},
	}
	return conn.WriteWireMessage(ctx, &kc)
}
