// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
)

// Find builds and runs a "find" command, returning a batchcursor.BatchCursor
// positioned at the server's first batch.
type Find struct {
	Namespace      batchcursor.Namespace
	Filter         bsoncore.Document
	Projection     bsoncore.Document
	Sort           bsoncore.Document
	Skip           int64
	Limit          int64
	BatchSize      int32
	Tailable       bool
	AwaitData      bool
	Exhaust        bool
	NoCursorTimeout bool
	ReadPref       *readpref.ReadPref
	Deployment     driver.Deployment
}

func (f Find) command() (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendStringElement("find", f.Namespace.Collection); err != nil {
		return nil, err
	}
	if f.Filter != nil {
		if err := b.AppendDocumentElement("filter", f.Filter); err != nil {
			return nil, err
		}
	}
	if f.Projection != nil {
		if err := b.AppendDocumentElement("projection", f.Projection); err != nil {
			return nil, err
		}
	}
	if f.Sort != nil {
		if err := b.AppendDocumentElement("sort", f.Sort); err != nil {
			return nil, err
		}
	}
	if f.Skip > 0 {
		if err := b.AppendInt64Element("skip", f.Skip); err != nil {
			return nil, err
		}
	}
	if f.Limit != 0 {
		if err := b.AppendInt64Element("limit", f.Limit); err != nil {
			return nil, err
		}
	}
	if f.BatchSize > 0 {
		if err := b.AppendInt32Element("batchSize", f.BatchSize); err != nil {
			return nil, err
		}
	}
	if f.Tailable {
		if err := b.AppendBooleanElement("tailable", true); err != nil {
			return nil, err
		}
		if f.AwaitData {
			if err := b.AppendBooleanElement("awaitData", true); err != nil {
				return nil, err
			}
		}
	}
	if f.NoCursorTimeout {
		if err := b.AppendBooleanElement("noCursorTimeout", true); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

// Execute runs the find command and wraps its reply's cursor.firstBatch
// into a ready-to-iterate BatchCursor.
func (f Find) Execute(ctx context.Context) (*batchcursor.BatchCursor, error) {
	op := driver.Operation{
		CommandFn:  f.command,
		Database:   f.Namespace.DB,
		ReadPref:   f.ReadPref,
		IsWrite:    false,
		Deployment: f.Deployment,
	}
	res, err := op.Execute(ctx)
	if err != nil {
		return nil, err
	}

	cursorVal, err := res.Reply.LookupErr("cursor")
	if err != nil {
		res.Conn.Close()
		return nil, err
	}
	cursorDoc, ok := cursorVal.DocumentOK()
	if !ok {
		res.Conn.Close()
		return nil, driver.InvalidArgument("find: reply cursor field was not a document")
	}

	idVal, err := cursorDoc.LookupErr("id")
	if err != nil {
		res.Conn.Close()
		return nil, err
	}
	cursorID, _ := idVal.AsInt64()

	batchVal, err := cursorDoc.LookupErr("firstBatch")
	if err != nil {
		res.Conn.Close()
		return nil, err
	}
	arr, ok := batchVal.ArrayOK()
	if !ok {
		res.Conn.Close()
		return nil, driver.InvalidArgument("find: reply cursor.firstBatch was not an array")
	}
	values, err := arr.Values()
	if err != nil {
		res.Conn.Close()
		return nil, err
	}
	firstBatch := make([]bsoncore.Document, 0, len(values))
	for _, v := range values {
		firstBatch = append(firstBatch, v.Document())
	}

	opts := []batchcursor.Option{batchcursor.WithBatchSize(f.BatchSize)}
	if f.Tailable {
		opts = append(opts, batchcursor.WithTailable(f.AwaitData))
	}
	if f.Exhaust {
		opts = append(opts, batchcursor.WithExhaust())
	}
	return batchcursor.New(res.Conn, f.Namespace, cursorID, firstBatch, opts...), nil
}
