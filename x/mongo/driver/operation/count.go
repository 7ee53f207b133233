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
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
)

// Count runs a "count" command and returns its n field. Unlike Find, a
// count reply has no cursor; the connection is closed before Execute
// returns.
type Count struct {
	Namespace  batchcursor.Namespace
	Filter     bsoncore.Document
	Limit      int64
	Skip       int64
	ReadPref   *readpref.ReadPref
	Deployment driver.Deployment
	Session    *session.Client
	Clock      *session.ClusterClock
}

func (c Count) command() (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendStringElement("count", c.Namespace.Collection); err != nil {
		return nil, err
	}
	if c.Filter != nil {
		if err := b.AppendDocumentElement("query", c.Filter); err != nil {
			return nil, err
		}
	}
	if c.Limit != 0 {
		if err := b.AppendInt64Element("limit", c.Limit); err != nil {
			return nil, err
		}
	}
	if c.Skip > 0 {
		if err := b.AppendInt64Element("skip", c.Skip); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

func (c Count) Execute(ctx context.Context) (int64, error) {
	op := driver.Operation{
		CommandFn:  c.command,
		Database:   c.Namespace.DB,
		ReadPref:   c.ReadPref,
		IsWrite:    false,
		Deployment: c.Deployment,
		Session:    c.Session,
		Clock:      c.Clock,
	}
	res, err := op.Execute(ctx)
	if err != nil {
		return 0, err
	}
	defer res.Conn.Close()

	v, err := res.Reply.LookupErr("n")
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt64()
	if !ok {
		return 0, driver.InvalidArgument("count: reply n field was not numeric")
	}
	return n, nil
}
