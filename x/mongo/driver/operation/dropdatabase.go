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
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// DropDatabase runs a "dropDatabase" command against a named database.
type DropDatabase struct {
	Database     string
	WriteConcern *writeconcern.WriteConcern
	Deployment   driver.Deployment
	Session      *session.Client
	Clock        *session.ClusterClock
}

func (d DropDatabase) command() (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("dropDatabase", 1); err != nil {
		return nil, err
	}
	if d.WriteConcern != nil {
		if err := d.WriteConcern.AppendElement(b, "writeConcern"); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

func (d DropDatabase) Execute(ctx context.Context) error {
	op := driver.Operation{
		CommandFn:  d.command,
		Database:   d.Database,
		IsWrite:    true,
		Deployment: d.Deployment,
		Session:    d.Session,
		Clock:      d.Clock,
	}
	res, err := op.Execute(ctx)
	if err != nil {
		return err
	}
	res.Conn.Close()
	return nil
}
