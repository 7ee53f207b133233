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
)

// listCollectionsCursorCollection is the pseudo-collection name the
// server addresses listCollections getMore/killCursors commands against,
// mirroring its handling of any other aggregation-style cursor.
const listCollectionsCursorCollection = "$cmd.listCollections"

// ListCollections runs a "listCollections" command and wraps its reply
// into a BatchCursor over collection-info documents.
type ListCollections struct {
	Database   string
	Filter     bsoncore.Document
	NameOnly   bool
	Deployment driver.Deployment
}

func (l ListCollections) command() (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("listCollections", 1); err != nil {
		return nil, err
	}
	if l.Filter != nil {
		if err := b.AppendDocumentElement("filter", l.Filter); err != nil {
			return nil, err
		}
	}
	if l.NameOnly {
		if err := b.AppendBooleanElement("nameOnly", true); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

func (l ListCollections) Execute(ctx context.Context) (*batchcursor.BatchCursor, error) {
	op := driver.Operation{
		CommandFn:  l.command,
		Database:   l.Database,
		IsWrite:    false,
		Deployment: l.Deployment,
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
		return nil, driver.InvalidArgument("listCollections: reply cursor field was not a document")
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
		return nil, driver.InvalidArgument("listCollections: reply cursor.firstBatch was not an array")
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

	ns := batchcursor.Namespace{DB: l.Database, Collection: listCollectionsCursorCollection}
	return batchcursor.New(res.Conn, ns, cursorID, firstBatch), nil
}
