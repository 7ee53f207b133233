// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driverlegacy

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// fakeConn is a minimal connection.Connection that records every sent
// message and replays a queue of canned replies, enough to drive
// Execute's write-then-optionally-getLastError sequence without a real
// socket.
type fakeConn struct {
	sent    []wiremessage.WireMessage
	replies []wiremessage.WireMessage
}

func (f *fakeConn) WriteWireMessage(ctx context.Context, wm wiremessage.WireMessage) error {
	f.sent = append(f.sent, wm)
	return nil
}

func (f *fakeConn) ReadWireMessage(ctx context.Context) (wiremessage.WireMessage, error) {
	if len(f.replies) == 0 {
		return nil, errors.New("fakeConn: no more queued replies")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeConn) Close() error                    { return nil }
func (f *fakeConn) Expired() bool                    { return false }
func (f *fakeConn) Alive() bool                      { return true }
func (f *fakeConn) ID() string                       { return "fakeConn" }
func (f *fakeConn) Address() address.Address         { return address.Address("localhost:27017") }

func getLastErrorReply(t *testing.T, fields func(*bsoncore.Builder)) *wiremessage.Reply {
	t.Helper()
	b := bsoncore.NewDocumentBuilder()
	if fields != nil {
		fields(b)
	}
	if err := b.AppendDoubleElement("ok", 1); err != nil {
		t.Fatalf("AppendDoubleElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return &wiremessage.Reply{NumberReturned: 1, Documents: [][]byte{doc}}
}

func TestExecuteUnacknowledgedSkipsGetLastError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	w := Write{
		Kind:         LegacyInsert,
		Namespace:    batchcursor.Namespace{DB: "db", Collection: "coll"},
		Documents:    []bsoncore.Document{mustDoc(t, "x", int32(1))},
		WriteConcern: writeconcern.Unacknowledged,
	}

	n, err := Execute(context.Background(), conn, w)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 for an unacknowledged write", n)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 (no getLastError round trip)", len(conn.sent))
	}
	if _, ok := conn.sent[0].(*wiremessage.Insert); !ok {
		t.Fatalf("sent message is %T, want *wiremessage.Insert", conn.sent[0])
	}
}

func TestExecuteAcknowledgedRunsGetLastError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{replies: []wiremessage.WireMessage{getLastErrorReply(t, nil)}}
	w := Write{
		Kind:         LegacyInsert,
		Namespace:    batchcursor.Namespace{DB: "db", Collection: "coll"},
		Documents:    []bsoncore.Document{mustDoc(t, "x", int32(1))},
		WriteConcern: writeconcern.W1,
	}

	n, err := Execute(context.Background(), conn, w)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1 (one document inserted)", n)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (insert + getLastError)", len(conn.sent))
	}
	if _, ok := conn.sent[1].(*wiremessage.Query); !ok {
		t.Fatalf("second message is %T, want *wiremessage.Query", conn.sent[1])
	}
}

func TestExecuteAcknowledgedSurfacesWriteConcernError(t *testing.T) {
	t.Parallel()

	reply := getLastErrorReply(t, func(b *bsoncore.Builder) {
		if err := b.AppendStringElement("err", "duplicate key"); err != nil {
			t.Fatalf("AppendStringElement: %v", err)
		}
		if err := b.AppendInt32Element("code", 11000); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
	})
	conn := &fakeConn{replies: []wiremessage.WireMessage{reply}}
	w := Write{
		Kind:         LegacyInsert,
		Namespace:    batchcursor.Namespace{DB: "db", Collection: "coll"},
		Documents:    []bsoncore.Document{mustDoc(t, "x", int32(1))},
		WriteConcern: writeconcern.W1,
	}

	_, err := Execute(context.Background(), conn, w)
	if err == nil {
		t.Fatalf("expected an error")
	}
	var wcErr *writeconcern.Error
	if !errors.As(err, &wcErr) {
		t.Fatalf("err = %v (%T), want *writeconcern.Error", err, err)
	}
	if wcErr.Code != 11000 {
		t.Fatalf("Code = %d, want 11000", wcErr.Code)
	}
}

func TestExecuteRejectsBypassDocumentValidation(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	w := Write{
		Kind:                     LegacyUpdate,
		Namespace:                batchcursor.Namespace{DB: "db", Collection: "coll"},
		BypassDocumentValidation: true,
	}

	_, err := Execute(context.Background(), conn, w)
	if !errors.Is(err, ErrBypassDocumentValidationUnsupported) {
		t.Fatalf("err = %v, want ErrBypassDocumentValidationUnsupported", err)
	}
	if len(conn.sent) != 0 {
		t.Fatalf("expected no messages sent, got %d", len(conn.sent))
	}
}

func TestExecuteRejectsCollation(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	w := Write{
		Kind:      LegacyDelete,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Collation: mustDoc(t, "locale", "en"),
	}

	_, err := Execute(context.Background(), conn, w)
	if !errors.Is(err, ErrBypassDocumentValidationUnsupported) {
		t.Fatalf("err = %v, want ErrBypassDocumentValidationUnsupported", err)
	}
}

func mustDoc(t *testing.T, key string, v interface{}) bsoncore.Document {
	t.Helper()
	b := bsoncore.NewDocumentBuilder()
	var err error
	switch val := v.(type) {
	case int32:
		err = b.AppendInt32Element(key, val)
	case string:
		err = b.AppendStringElement(key, val)
	default:
		t.Fatalf("mustDoc: unsupported type %T", v)
	}
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return doc
}
