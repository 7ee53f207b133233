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

// UpdateModel is one element of an update command's updates[] array.
type UpdateModel struct {
	Filter bsoncore.Document
	Update bsoncore.Document // a modifier document or, for a replacement, a plain document
	Upsert bool
	Multi  bool
}

// BuildUpdateOp encodes one UpdateModel into the {q, u, upsert, multi}
// shape the update command expects. Replacement documents (no top-level
// $-operator keys) set bsoncore.BitDollarInitKey on Filter's own
// validation pass upstream, not here; this just forwards whatever the
// caller built.
func BuildUpdateOp(m UpdateModel) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendDocumentElement("q", m.Filter); err != nil {
		return nil, err
	}
	if err := b.AppendDocumentElement("u", m.Update); err != nil {
		return nil, err
	}
	if m.Upsert {
		if err := b.AppendBooleanElement("upsert", true); err != nil {
			return nil, err
		}
	}
	if m.Multi {
		if err := b.AppendBooleanElement("multi", true); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

// Update runs an "update" write command over one or more UpdateModels.
type Update struct {
	Namespace                batchcursor.Namespace
	Models                   []UpdateModel
	Ordered                  bool
	BypassDocumentValidation bool
	WriteConcern             *writeconcern.WriteConcern
	Deployment               driver.Deployment
	Session                  *session.Client
	Clock                    *session.ClusterClock
}

func (u Update) Execute(ctx context.Context) (*driver.BulkResult, error) {
	ops := make([]bsoncore.Document, 0, len(u.Models))
	for _, m := range u.Models {
		op, err := BuildUpdateOp(m)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	coord := driver.Coordinator{Deployment: u.Deployment, Session: u.Session, Clock: u.Clock}
	return coord.Execute(ctx, driver.WriteBatch{
		Kind:                     driver.UpdateWrites,
		Namespace:                u.Namespace,
		Ordered:                  u.Ordered,
		BypassDocumentValidation: u.BypassDocumentValidation,
		WriteConcern:             u.WriteConcern,
		Ops:                      ops,
	})
}
