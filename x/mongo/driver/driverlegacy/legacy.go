// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driverlegacy dispatches writes as bare OP_INSERT/OP_UPDATE/
// OP_DELETE for servers that predate the write-command protocol
// (maxWireVersion 0), following every unacknowledged opcode with an
// explicit getLastError when the caller asked for w>=1. Mirrors
// mongoc-write-command-legacy.c's split between the fire-and-forget
// opcode and the acknowledgement round-trip it bolts on afterward.
package driverlegacy

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// ErrBypassDocumentValidationUnsupported is returned when a caller asks
// for bypassDocumentValidation or collation on the legacy opcode path;
// neither field exists on OP_INSERT/OP_UPDATE/OP_DELETE, and mongoc
// refuses the call outright rather than silently drop it.
var ErrBypassDocumentValidationUnsupported = errors.New("driverlegacy: bypassDocumentValidation and collation require the write-command protocol")

// WriteKind names which legacy opcode a Write dispatches.
type WriteKind uint8

const (
	LegacyInsert WriteKind = iota
	LegacyUpdate
	LegacyDelete
)

// Write describes one legacy-protocol write. BypassDocumentValidation
// and Collation are accepted only so callers can be rejected with
// ErrBypassDocumentValidationUnsupported instead of having the field
// silently ignored.
type Write struct {
	Kind                     WriteKind
	Namespace                batchcursor.Namespace
	Documents                []bsoncore.Document // LegacyInsert
	Selector                 bsoncore.Document   // LegacyUpdate/LegacyDelete
	Update                   bsoncore.Document   // LegacyUpdate
	Upsert                   bool                // LegacyUpdate
	Multi                    bool                // LegacyUpdate
	SingleRemove             bool                // LegacyDelete
	WriteConcern             *writeconcern.WriteConcern
	BypassDocumentValidation bool
	Collation                bsoncore.Document
}

// Execute writes w's opcode over conn, then, if w's write concern is
// acknowledged, runs getLastError and canonicalizes its reply into an
// error (nil on success). The returned count is the server-reported
// "n" for an update/delete, or len(w.Documents) for an insert (legacy
// OP_INSERT + getLastError never reports a per-document insert count);
// it is always 0 for an unacknowledged write, since no reply is read.
func Execute(ctx context.Context, conn connection.Connection, w Write) (int64, error) {
	if w.BypassDocumentValidation || w.Collation != nil {
		return 0, ErrBypassDocumentValidationUnsupported
	}

	msg, err := w.opcode()
	if err != nil {
		return 0, err
	}
	if err := conn.WriteWireMessage(ctx, msg); err != nil {
		return 0, err
	}

	if !writeconcern.AckWrite(w.WriteConcern) {
		return 0, nil
	}
	return w.getLastError(ctx, conn)
}

// opcode builds w's legacy wire message. Outgoing legacy-family messages
// carry response_to -1, the pre-OP_MSG convention.
func (w Write) opcode() (wiremessage.WireMessage, error) {
	ns := w.Namespace.FullName()
	switch w.Kind {
	case LegacyInsert:
		docs := make([][]byte, len(w.Documents))
		for i, d := range w.Documents {
			docs[i] = d
		}
		return &wiremessage.Insert{
			MsgHeader:          wiremessage.Header{RequestID: wiremessage.NextRequestID(), ResponseTo: -1},
			FullCollectionName: ns,
			Documents:          docs,
		}, nil
	case LegacyUpdate:
		var flags wiremessage.UpdateFlag
		if w.Upsert {
			flags |= wiremessage.UpdateUpsert
		}
		if w.Multi {
			flags |= wiremessage.UpdateMulti
		}
		return &wiremessage.Update{
			MsgHeader:          wiremessage.Header{RequestID: wiremessage.NextRequestID(), ResponseTo: -1},
			FullCollectionName: ns,
			Flags:              flags,
			Selector:           w.Selector,
			Update:             w.Update,
		}, nil
	case LegacyDelete:
		var flags wiremessage.DeleteFlag
		if w.SingleRemove {
			flags |= wiremessage.DeleteSingleRemove
		}
		return &wiremessage.Delete{
			MsgHeader:          wiremessage.Header{RequestID: wiremessage.NextRequestID(), ResponseTo: -1},
			FullCollectionName: ns,
			Flags:              flags,
			Selector:           w.Selector,
		}, nil
	default:
		return nil, errors.New("driverlegacy: unknown write kind")
	}
}

// getLastError runs {getLastError: 1, <w/j/wtimeout>} as an OP_QUERY
// against $cmd, the pre-command-protocol way of learning whether an
// opcode succeeded (mongoc-write-command-legacy.c).
func (w Write) getLastError(ctx context.Context, conn connection.Connection) (int64, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("getLastError", 1); err != nil {
		return 0, err
	}
	if w.WriteConcern != nil {
		wb := bsoncore.NewDocumentBuilder()
		if err := w.WriteConcern.AppendElement(wb, "writeConcern"); err != nil {
			return 0, err
		}
		wdoc, _, err := wb.Finish()
		if err != nil {
			return 0, err
		}
		if wcVal, lookupErr := wdoc.LookupErr("writeConcern"); lookupErr == nil {
			elems, _ := wcVal.Document().Elements()
			for _, e := range elems {
				b.AppendValueElement(e.Key(), e.Value())
			}
		}
	}
	cmd, _, err := b.Finish()
	if err != nil {
		return 0, err
	}

	query := &wiremessage.Query{
		MsgHeader:          wiremessage.Header{RequestID: wiremessage.NextRequestID(), ResponseTo: -1},
		FullCollectionName: w.Namespace.DB + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	}
	if err := conn.WriteWireMessage(ctx, query); err != nil {
		return 0, err
	}

	reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		return 0, err
	}
	r, ok := reply.(*wiremessage.Reply)
	if !ok || len(r.Documents) == 0 {
		return 0, errors.New("driverlegacy: getLastError reply was not OP_REPLY with a document")
	}
	body := bsoncore.Document(r.Documents[0])

	if v, lookupErr := body.LookupErr("err"); lookupErr == nil {
		if msg, ok := v.StringValueOK(); ok && msg != "" {
			code := int32(0)
			if cv, cerr := body.LookupErr("code"); cerr == nil {
				if n, ok := cv.AsInt64(); ok {
					code = int32(n)
				}
			}
			return 0, &writeconcern.Error{Code: code, Message: msg}
		}
	}

	if w.Kind == LegacyInsert {
		return int64(len(w.Documents)), nil
	}
	if v, lookupErr := body.LookupErr("n"); lookupErr == nil {
		if n, ok := v.AsInt64(); ok {
			return n, nil
		}
	}
	return 0, nil
}
