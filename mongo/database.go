// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/operation"
)

// Database is a handle for one named database on client's deployment.
type Database struct {
	client *Client
	name   string
}

// Name returns the database's name.
func (db *Database) Name() string { return db.name }

// Collection returns a handle for the named collection.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Drop runs dropDatabase against this database.
func (db *Database) Drop(ctx context.Context) error {
	op := operation.DropDatabase{
		Database:     db.name,
		WriteConcern: db.client.writeConcern,
		Deployment:   db.client.topology,
		Clock:        db.client.clock,
	}
	return fromDriverError(op.Execute(ctx))
}

// ListCollectionNames returns the names of every collection visible in
// this database, draining the listCollections cursor with nameOnly set.
func (db *Database) ListCollectionNames(ctx context.Context, filter bsoncore.Document) ([]string, error) {
	op := operation.ListCollections{
		Database:   db.name,
		Filter:     filter,
		NameOnly:   true,
		Deployment: db.client.topology,
	}
	cur, err := op.Execute(ctx)
	if err != nil {
		return nil, fromDriverError(err)
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		doc := cur.Current()
		v, err := doc.LookupErr("name")
		if err != nil {
			continue
		}
		if s, ok := v.StringValueOK(); ok {
			names = append(names, s)
		}
	}
	return names, fromDriverError(cur.Err())
}
