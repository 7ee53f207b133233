// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

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

func (f *fakeConn) Close() error             { return nil }
func (f *fakeConn) Expired() bool            { return false }
func (f *fakeConn) Alive() bool              { return true }
func (f *fakeConn) ID() string               { return "fakeConn" }
func (f *fakeConn) Address() address.Address { return address.Address("localhost:27017") }

// fakeDeployment always hands out the same conn/desc pair, enough to
// drive a Coordinator without a real topology.
type fakeDeployment struct {
	conn *fakeConn
	desc *description.Server
}

func (d *fakeDeployment) SelectServer(ctx context.Context, _ description.ServerSelector) (connection.Connection, *description.Server, error) {
	return d.conn, d.desc, nil
}

func commandReply(t *testing.T, fields func(*bsoncore.Builder)) *wiremessage.Msg {
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
	return &wiremessage.Msg{Sections: []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: doc}}}
}

func TestCoordinatorExecuteOrderedStopsAtFirstWriteError(t *testing.T) {
	t.Parallel()

	reply := commandReply(t, func(b *bsoncore.Builder) {
		if err := b.AppendInt32Element("n", 1); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if err := b.StartArray("writeErrors"); err != nil {
			t.Fatalf("StartArray: %v", err)
		}
		if err := b.StartDocument("0"); err != nil {
			t.Fatalf("StartDocument: %v", err)
		}
		if err := b.AppendInt32Element("index", 1); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if err := b.AppendInt32Element("code", 11000); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if err := b.AppendStringElement("errmsg", "duplicate key"); err != nil {
			t.Fatalf("AppendStringElement: %v", err)
		}
		if err := b.FinishDocument(); err != nil {
			t.Fatalf("FinishDocument: %v", err)
		}
		if err := b.FinishArray(); err != nil {
			t.Fatalf("FinishArray: %v", err)
		}
	})

	conn := &fakeConn{replies: []wiremessage.WireMessage{reply, commandReply(t, nil)}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17}}
	coord := Coordinator{Deployment: dep}

	docA := mustDoc(t, "x", int32(1))
	docB := mustDoc(t, "x", int32(2))
	docC := mustDoc(t, "x", int32(3))

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ordered:   true,
		Ops:       []bsoncore.Document{docA, docB, docC},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.WriteErrors) != 1 {
		t.Fatalf("WriteErrors = %v, want 1 entry", result.WriteErrors)
	}
	// splitWriteBatches packs every op into a single command here (well
	// under the default size/count caps), so the single reply above is
	// the whole story: Ordered must not synthesize a second round trip.
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d commands, want 1 (ordered batch stops after its only chunk's error)", len(conn.sent))
	}
}

func TestCoordinatorExecuteLegacyDispatchesBareOpcodes(t *testing.T) {
	t.Parallel()

	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("n", 1); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	if err := b.AppendDoubleElement("ok", 1); err != nil {
		t.Fatalf("AppendDoubleElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	conn := &fakeConn{replies: []wiremessage.WireMessage{&wiremessage.Reply{Documents: [][]byte{doc}}}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 0}}
	coord := Coordinator{Deployment: dep}

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ops:       []bsoncore.Document{mustDoc(t, "x", int32(1))},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.InsertedCount != 1 {
		t.Fatalf("InsertedCount = %d, want 1", result.InsertedCount)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (OP_INSERT + getLastError)", len(conn.sent))
	}
	if _, ok := conn.sent[0].(*wiremessage.Insert); !ok {
		t.Fatalf("first message is %T, want *wiremessage.Insert", conn.sent[0])
	}
}

func TestCoordinatorExecuteLegacyUpdateDecodesOpShape(t *testing.T) {
	t.Parallel()

	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("n", 2); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	if err := b.AppendDoubleElement("ok", 1); err != nil {
		t.Fatalf("AppendDoubleElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	conn := &fakeConn{replies: []wiremessage.WireMessage{&wiremessage.Reply{Documents: [][]byte{doc}}}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 0}}
	coord := Coordinator{Deployment: dep}

	op, err := BuildUpdateOpForTest(mustDoc(t, "x", int32(1)), mustDoc(t, "x", int32(2)), false, true)
	if err != nil {
		t.Fatalf("BuildUpdateOpForTest: %v", err)
	}

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      UpdateWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ops:       []bsoncore.Document{op},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.MatchedCount != 2 {
		t.Fatalf("MatchedCount = %d, want 2", result.MatchedCount)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (OP_UPDATE + getLastError)", len(conn.sent))
	}
	if _, ok := conn.sent[0].(*wiremessage.Update); !ok {
		t.Fatalf("first message is %T, want *wiremessage.Update", conn.sent[0])
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

// BuildUpdateOpForTest builds the same {q, u, upsert, multi} shape
// operation.BuildUpdateOp produces, without importing the operation
// package (which itself imports driver, so the reverse import here
// would cycle).
func BuildUpdateOpForTest(filter, update bsoncore.Document, upsert, multi bool) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendDocumentElement("q", filter); err != nil {
		return nil, err
	}
	if err := b.AppendDocumentElement("u", update); err != nil {
		return nil, err
	}
	if upsert {
		if err := b.AppendBooleanElement("upsert", true); err != nil {
			return nil, err
		}
	}
	if multi {
		if err := b.AppendBooleanElement("multi", true); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

// insertReply builds an insert command reply carrying n plus an optional
// writeErrors array with one entry at batch-local index errIdx.
func insertReply(t *testing.T, n int32, hasErr bool, errIdx int32) *wiremessage.Msg {
	t.Helper()
	return commandReply(t, func(b *bsoncore.Builder) {
		if err := b.AppendInt32Element("n", n); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if !hasErr {
			return
		}
		if err := b.StartArray("writeErrors"); err != nil {
			t.Fatalf("StartArray: %v", err)
		}
		if err := b.StartDocument("0"); err != nil {
			t.Fatalf("StartDocument: %v", err)
		}
		if err := b.AppendInt32Element("index", errIdx); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if err := b.AppendInt32Element("code", 11000); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
		if err := b.AppendStringElement("errmsg", "duplicate key"); err != nil {
			t.Fatalf("AppendStringElement: %v", err)
		}
		if err := b.FinishDocument(); err != nil {
			t.Fatalf("FinishDocument: %v", err)
		}
		if err := b.FinishArray(); err != nil {
			t.Fatalf("FinishArray: %v", err)
		}
	})
}

func tenDocs(t *testing.T) []bsoncore.Document {
	t.Helper()
	docs := make([]bsoncore.Document, 0, 10)
	for i := int32(0); i < 10; i++ {
		docs = append(docs, mustDoc(t, "x", i))
	}
	return docs
}

func TestCoordinatorExecuteUnorderedContinuesPastWriteError(t *testing.T) {
	t.Parallel()

	// MaxBatchCount 5 splits ten inserts into two commands. The first
	// chunk reports a duplicate key at local index 1 and only 4 inserted;
	// unordered execution must still send the second chunk and
	// accumulate its 5.
	conn := &fakeConn{replies: []wiremessage.WireMessage{
		insertReply(t, 4, true, 1),
		insertReply(t, 5, false, 0),
	}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17, MaxBatchCount: 5}}
	coord := Coordinator{Deployment: dep}

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ordered:   false,
		Ops:       tenDocs(t),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(conn.sent) != 2 {
		t.Fatalf("sent %d commands, want 2 (unordered continues past the first chunk's error)", len(conn.sent))
	}
	if result.InsertedCount != 9 {
		t.Fatalf("InsertedCount = %d, want 9", result.InsertedCount)
	}
	if len(result.WriteErrors) != 1 {
		t.Fatalf("WriteErrors = %v, want 1 entry", result.WriteErrors)
	}
	if result.WriteErrors[0].Index != 1 {
		t.Fatalf("WriteErrors[0].Index = %d, want the caller-global index 1", result.WriteErrors[0].Index)
	}
	if code, ok := result.WriteErrors[0].Canonical(); !ok || code != CodeDuplicateKey {
		t.Fatalf("Canonical() = (%v, %v), want (DuplicateKey, true)", code, ok)
	}
}

func TestCoordinatorExecuteOrderedStopsAcrossChunks(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{replies: []wiremessage.WireMessage{
		insertReply(t, 4, true, 1),
		insertReply(t, 5, false, 0),
	}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17, MaxBatchCount: 5}}
	coord := Coordinator{Deployment: dep}

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ordered:   true,
		Ops:       tenDocs(t),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(conn.sent) != 1 {
		t.Fatalf("sent %d commands, want 1 (ordered stops before the second chunk)", len(conn.sent))
	}
	if result.InsertedCount != 4 {
		t.Fatalf("InsertedCount = %d, want 4", result.InsertedCount)
	}
}

func TestCoordinatorExecuteSecondChunkErrorKeepsGlobalIndex(t *testing.T) {
	t.Parallel()

	// Duplicate key at the caller's position 5: chunk two's reply names
	// it as its local index 0, and the merge must re-base it by the
	// chunk's starting offset.
	conn := &fakeConn{replies: []wiremessage.WireMessage{
		insertReply(t, 5, false, 0),
		insertReply(t, 4, true, 0),
	}}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17, MaxBatchCount: 5}}
	coord := Coordinator{Deployment: dep}

	result, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ordered:   false,
		Ops:       tenDocs(t),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.InsertedCount != 9 {
		t.Fatalf("InsertedCount = %d, want 9", result.InsertedCount)
	}
	if len(result.WriteErrors) != 1 || result.WriteErrors[0].Index != 5 {
		t.Fatalf("WriteErrors = %+v, want one error at global index 5", result.WriteErrors)
	}
}

func TestCoordinatorExecuteEmptyBatchFailsBeforeIO(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17}}
	coord := Coordinator{Deployment: dep}

	_, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
	})
	if err == nil {
		t.Fatalf("expected InvalidArg for an empty operation list")
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Code != CodeInvalidArg {
		t.Fatalf("err = %v, want an InvalidArg driver error", err)
	}
	if len(conn.sent) != 0 {
		t.Fatalf("empty batch still sent %d messages", len(conn.sent))
	}
}

func TestCoordinatorExecuteOversizeDocumentFailsPreSend(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	// A 64-byte negotiated limit makes any real document oversized.
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17, MaxDocumentSize: 64}}
	coord := Coordinator{Deployment: dep}

	_, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ops:       []bsoncore.Document{mustDoc(t, "payload", "a string comfortably longer than the negotiated sixty-four byte limit")},
	})
	if err == nil {
		t.Fatalf("expected BsonTooLarge for a document over the negotiated limit")
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Code != CodeBsonTooLarge {
		t.Fatalf("err = %v, want BsonTooLarge", err)
	}
	if len(conn.sent) != 0 {
		t.Fatalf("oversize document still wrote %d messages to the connection", len(conn.sent))
	}
}

func TestCoordinatorExecuteUnacknowledgedRejectsDollarKeys(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	dep := &fakeDeployment{conn: conn, desc: &description.Server{MaxWireVersion: 17}}
	coord := Coordinator{Deployment: dep}

	unack := &writeconcern.WriteConcern{W: 0}
	_, err := coord.Execute(context.Background(), WriteBatch{
		Kind:         InsertWrites,
		Namespace:    batchcursor.Namespace{DB: "db", Collection: "coll"},
		WriteConcern: unack,
		Ops:          []bsoncore.Document{mustDoc(t, "$set", "x")},
	})
	if err == nil {
		t.Fatalf("expected rejection of a $-initial key on an unacknowledged insert")
	}
	if len(conn.sent) != 0 {
		t.Fatalf("invalid unacknowledged insert still wrote %d messages", len(conn.sent))
	}

	// The same document is fine when the write is acknowledged; the
	// server reports any objection in its reply instead.
	conn2 := &fakeConn{replies: []wiremessage.WireMessage{commandReply(t, func(b *bsoncore.Builder) {
		if err := b.AppendInt32Element("n", 1); err != nil {
			t.Fatalf("AppendInt32Element: %v", err)
		}
	})}}
	coord = Coordinator{Deployment: &fakeDeployment{conn: conn2, desc: &description.Server{MaxWireVersion: 17}}}
	if _, err := coord.Execute(context.Background(), WriteBatch{
		Kind:      InsertWrites,
		Namespace: batchcursor.Namespace{DB: "db", Collection: "coll"},
		Ops:       []bsoncore.Document{mustDoc(t, "$set", "x")},
	}); err != nil {
		t.Fatalf("acknowledged insert with a $ key failed client-side: %v", err)
	}
}
