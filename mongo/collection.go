// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-go-driver-core/mongo/options"
	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/operation"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
)

// Collection is a handle for one named collection within a Database.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) ns() batchcursor.Namespace {
	return batchcursor.Namespace{DB: c.db.name, Collection: c.name}
}

func (c *Collection) client() *Client { return c.db.client }

// InsertOne inserts a single already-encoded document.
func (c *Collection) InsertOne(ctx context.Context, document bsoncore.Document, opts ...*options.InsertOneOptionsBuilder) (*driver.BulkResult, error) {
	opt, err := options.MergeInsertOneOptions(opts...)
	if err != nil {
		return nil, err
	}

	op := operation.Insert{
		Namespace:  c.ns(),
		Documents:  []bsoncore.Document{document},
		Ordered:    true,
		Deployment: c.client().topology,
		Clock:      c.client().clock,
	}
	if opt.BypassDocumentValidation != nil {
		op.BypassDocumentValidation = *opt.BypassDocumentValidation
	}
	if wc := c.client().writeConcern; wc != nil {
		op.WriteConcern = wc
	}

	start := time.Now()
	c.client().logCommandStarted("insert", c.db.name, 0, "")
	res, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("insert", 0, start, err)
		return nil, fromDriverError(err)
	}
	c.client().logCommandSucceeded("insert", 0, start)
	if exc := toWriteException(res); exc != nil {
		return res, exc
	}
	return res, nil
}

// InsertMany inserts multiple already-encoded documents in one batch.
func (c *Collection) InsertMany(ctx context.Context, documents []bsoncore.Document, opts ...*options.InsertManyOptionsBuilder) (*driver.BulkResult, error) {
	opt, err := options.MergeInsertManyOptions(opts...)
	if err != nil {
		return nil, err
	}

	op := operation.Insert{
		Namespace:  c.ns(),
		Documents:  documents,
		Ordered:    true,
		Deployment: c.client().topology,
		Clock:      c.client().clock,
	}
	if opt.Ordered != nil {
		op.Ordered = *opt.Ordered
	}
	if opt.BypassDocumentValidation != nil {
		op.BypassDocumentValidation = *opt.BypassDocumentValidation
	}
	if wc := c.client().writeConcern; wc != nil {
		op.WriteConcern = wc
	}

	start := time.Now()
	c.client().logCommandStarted("insert", c.db.name, 0, "")
	res, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("insert", 0, start, err)
		return nil, fromDriverError(err)
	}
	c.client().logCommandSucceeded("insert", 0, start)
	if exc := toWriteException(res); exc != nil {
		return res, exc
	}
	return res, nil
}

// Find runs a find command and returns a Cursor over the matched
// documents.
func (c *Collection) Find(ctx context.Context, filter bsoncore.Document, opts ...*options.FindOptionsBuilder) (*Cursor, error) {
	opt, err := options.MergeFindOptions(opts...)
	if err != nil {
		return nil, err
	}

	op := operation.Find{
		Namespace:  c.ns(),
		Filter:     filter,
		Deployment: c.client().topology,
		ReadPref:   readpref.Primary(),
	}
	if opt.Sort != nil {
		op.Sort = opt.Sort
	}
	if opt.Projection != nil {
		op.Projection = opt.Projection
	}
	if opt.Skip != nil {
		op.Skip = *opt.Skip
	}
	if opt.Limit != nil {
		op.Limit = *opt.Limit
	}
	if opt.BatchSize != nil {
		op.BatchSize = *opt.BatchSize
	}
	if opt.NoCursorTimeout != nil {
		op.NoCursorTimeout = *opt.NoCursorTimeout
	}
	if opt.Tailable != nil {
		op.Tailable = *opt.Tailable
	}
	if opt.AwaitData != nil {
		op.AwaitData = *opt.AwaitData
	}
	if opt.Exhaust != nil {
		op.Exhaust = *opt.Exhaust
	}

	start := time.Now()
	c.client().logCommandStarted("find", c.db.name, 0, "")
	bc, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("find", 0, start, err)
		return nil, fromDriverError(err)
	}
	c.client().logCommandSucceeded("find", 0, start)
	return newCursor(c.client(), bc), nil
}

// FindOne runs a find command limited to one document and returns a copy
// of it as a raw document, or returns ErrNoDocuments if nothing matched.
func (c *Collection) FindOne(ctx context.Context, filter bsoncore.Document, opts ...*options.FindOptionsBuilder) (bsoncore.Document, error) {
	opts = append(opts, options.Find().SetLimit(1).SetBatchSize(1))
	cur, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoDocuments
	}
	doc := make(bsoncore.Document, len(cur.Current()))
	copy(doc, cur.Current())
	return doc, nil
}

func (c *Collection) update(ctx context.Context, filter, update bsoncore.Document, multi bool, opts ...*options.UpdateOptionsBuilder) (*driver.BulkResult, error) {
	opt, err := options.MergeUpdateOptions(opts...)
	if err != nil {
		return nil, err
	}

	model := operation.UpdateModel{Filter: filter, Update: update, Multi: multi}
	if opt.Upsert != nil {
		model.Upsert = *opt.Upsert
	}

	op := operation.Update{
		Namespace:  c.ns(),
		Models:     []operation.UpdateModel{model},
		Ordered:    true,
		Deployment: c.client().topology,
		Clock:      c.client().clock,
	}
	if opt.BypassDocumentValidation != nil {
		op.BypassDocumentValidation = *opt.BypassDocumentValidation
	}
	if wc := c.client().writeConcern; wc != nil {
		op.WriteConcern = wc
	}

	start := time.Now()
	c.client().logCommandStarted("update", c.db.name, 0, "")
	res, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("update", 0, start, err)
		return nil, fromDriverError(err)
	}
	c.client().logCommandSucceeded("update", 0, start)
	if exc := toWriteException(res); exc != nil {
		return res, exc
	}
	return res, nil
}

// UpdateOne applies update to at most one document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, update bsoncore.Document, opts ...*options.UpdateOptionsBuilder) (*driver.BulkResult, error) {
	return c.update(ctx, filter, update, false, opts...)
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update bsoncore.Document, opts ...*options.UpdateOptionsBuilder) (*driver.BulkResult, error) {
	return c.update(ctx, filter, update, true, opts...)
}

func (c *Collection) delete(ctx context.Context, filter bsoncore.Document, limit int32) (*driver.BulkResult, error) {
	op := operation.Delete{
		Namespace:  c.ns(),
		Models:     []operation.DeleteModel{{Filter: filter, Limit: limit}},
		Ordered:    true,
		Deployment: c.client().topology,
		Clock:      c.client().clock,
	}
	if wc := c.client().writeConcern; wc != nil {
		op.WriteConcern = wc
	}

	start := time.Now()
	c.client().logCommandStarted("delete", c.db.name, 0, "")
	res, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("delete", 0, start, err)
		return nil, fromDriverError(err)
	}
	c.client().logCommandSucceeded("delete", 0, start)
	if exc := toWriteException(res); exc != nil {
		return res, exc
	}
	return res, nil
}

// DeleteOne removes at most one document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter bsoncore.Document) (*driver.BulkResult, error) {
	return c.delete(ctx, filter, 1)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter bsoncore.Document) (*driver.BulkResult, error) {
	return c.delete(ctx, filter, 0)
}

// CountDocuments returns the number of documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter bsoncore.Document, opts ...*options.CountOptionsBuilder) (int64, error) {
	opt, err := options.MergeCountOptions(opts...)
	if err != nil {
		return 0, err
	}

	op := operation.Count{
		Namespace:  c.ns(),
		Filter:     filter,
		Deployment: c.client().topology,
		ReadPref:   readpref.Primary(),
	}
	if opt.Limit != nil {
		op.Limit = *opt.Limit
	}
	if opt.Skip != nil {
		op.Skip = *opt.Skip
	}

	start := time.Now()
	c.client().logCommandStarted("count", c.db.name, 0, "")
	n, err := op.Execute(ctx)
	if err != nil {
		c.client().logCommandFailed("count", 0, start, err)
		return 0, fromDriverError(err)
	}
	c.client().logCommandSucceeded("count", 0, start)
	return n, nil
}
