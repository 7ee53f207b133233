// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"
	"runtime"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
)

// ErrNoDocuments is returned by FindOne when no document matches the
// filter.
var ErrNoDocuments = errors.New("mongo: no documents in result")

// Cursor wraps a batchcursor.BatchCursor behind the application-facing
// iteration shape: Created -> FirstBatch -> NeedMore -> Exhausted.
type Cursor struct {
	bc     *batchcursor.BatchCursor
	closed bool
}

// newCursor wraps bc and arranges for client's cursor pool to learn about
// it if the caller drops it on the floor without calling Close: the
// finalizer queues the abandoned id for the next coalesced killCursors
// instead of leaking the server-side cursor until its 10-minute timeout.
func newCursor(client *Client, bc *batchcursor.BatchCursor) *Cursor {
	c := &Cursor{bc: bc}
	runtime.SetFinalizer(c, func(c *Cursor) {
		if c.closed || c.bc.ID() == 0 {
			return
		}
		client.abandonCursor(c.bc.Address(), c.bc.Namespace(), c.bc.ID())
	})
	return c
}

// Next advances the cursor, issuing a getMore against the server when
// the current batch is drained. It returns false at end of results or
// on error; callers must check Err afterward to distinguish the two.
func (c *Cursor) Next(ctx context.Context) bool {
	return c.bc.Next(ctx)
}

// Current returns the document Next just advanced to. The returned view
// is invalidated by the next Next call; callers needing it longer must
// copy it.
func (c *Cursor) Current() bsoncore.Document {
	return c.bc.Current()
}

// Err returns the error, if any, that ended iteration.
func (c *Cursor) Err() error {
	return fromDriverError(c.bc.Err())
}

// Close kills the server-side cursor, if one remains, and closes the
// underlying connection.
func (c *Cursor) Close(ctx context.Context) error {
	c.closed = true
	runtime.SetFinalizer(c, nil)
	return fromDriverError(c.bc.Close(ctx))
}

// All drains the cursor into a slice of document copies and closes it.
func (c *Cursor) All(ctx context.Context) ([]bsoncore.Document, error) {
	defer c.Close(ctx)

	var docs []bsoncore.Document
	for c.Next(ctx) {
		doc := make(bsoncore.Document, len(c.Current()))
		copy(doc, c.Current())
		docs = append(docs, doc)
	}
	return docs, c.Err()
}
