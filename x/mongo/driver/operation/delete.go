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
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// DeleteModel is one element of a delete command's deletes[] array. Limit
// is 1 for delete_one semantics, 0 for delete_many.
type DeleteModel struct {
	Filter bsoncore.Document
	Limit  int32
}

// BuildDeleteOp encodes one DeleteModel into the {q, limit} shape the
// delete command expects.
func BuildDeleteOp(m DeleteModel) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendDocumentElement("q", m.Filter); err != nil {
		return nil, err
	}
	if err := b.AppendInt32Element("limit", m.Limit); err != nil {
		return nil, err
	}
	doc, _, err := b.Finish()
	return doc, err
}

// Delete runs a "delete" write command over one or more DeleteModels.
type Delete struct {
	Namespace    batchcursor.Namespace
	Models       []DeleteModel
	Ordered      bool
	WriteConcern *writeconcern.WriteConcern
	Deployment   driver.Deployment
	Session      *session.Client
	Clock        *session.ClusterClock
}

func (d Delete) Execute(ctx context.Context) (*driver.BulkResult, error) {
	ops := make([]bsoncore.Document, 0, len(d.Models))
	for _, m := range d.Models {
		op, err := BuildDeleteOp(m)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	coord := driver.Coordinator{Deployment: d.Deployment, Session: d.Session, Clock: d.Clock}
	return coord.Execute(ctx, driver.WriteBatch{
		Kind:         driver.DeleteWrites,
		Namespace:    d.Namespace,
		Ordered:      d.Ordered,
		WriteConcern: d.WriteConcern,
		Ops:          ops,
	})
}
