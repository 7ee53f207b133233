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

// Insert builds and runs an "insert" write command over one or more
// already-encoded documents.
type Insert struct {
	Namespace                batchcursor.Namespace
	Documents                []bsoncore.Document
	Ordered                  bool
	BypassDocumentValidation bool
	WriteConcern             *writeconcern.WriteConcern
	Deployment               driver.Deployment
	Session                  *session.Client
	Clock                    *session.ClusterClock
}

func (i Insert) Execute(ctx context.Context) (*driver.BulkResult, error) {
	coord := driver.Coordinator{Deployment: i.Deployment, Session: i.Session, Clock: i.Clock}
	return coord.Execute(ctx, driver.WriteBatch{
		Kind:                     driver.InsertWrites,
		Namespace:                i.Namespace,
		Ordered:                  i.Ordered,
		BypassDocumentValidation: i.BypassDocumentValidation,
		WriteConcern:             i.WriteConcern,
		Ops:                      i.Documents,
	})
}
