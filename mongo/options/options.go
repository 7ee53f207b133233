// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options holds the per-call option structs and their builders
// (grounded on mongo/options/insertoptions.go's
// Options-struct-plus-OptionsBuilder-of-setter-funcs shape).
package options

import "go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"

// InsertOneOptions configures InsertOne.
type InsertOneOptions struct {
	BypassDocumentValidation *bool
}

// InsertOneOptionsBuilder accumulates InsertOneOptions setters.
type InsertOneOptionsBuilder struct {
	Opts []func(*InsertOneOptions) error
}

// InsertOne starts a new InsertOneOptionsBuilder.
func InsertOne() *InsertOneOptionsBuilder { return &InsertOneOptionsBuilder{} }

// OptionsSetters returns the accumulated setter functions.
func (b *InsertOneOptionsBuilder) OptionsSetters() []func(*InsertOneOptions) error { return b.Opts }

// SetBypassDocumentValidation sets BypassDocumentValidation.
func (b *InsertOneOptionsBuilder) SetBypassDocumentValidation(v bool) *InsertOneOptionsBuilder {
	b.Opts = append(b.Opts, func(o *InsertOneOptions) error { o.BypassDocumentValidation = &v; return nil })
	return b
}

// InsertManyOptions configures InsertMany.
type InsertManyOptions struct {
	BypassDocumentValidation *bool
	Ordered                  *bool
}

// InsertManyOptionsBuilder accumulates InsertManyOptions setters.
type InsertManyOptionsBuilder struct {
	Opts []func(*InsertManyOptions) error
}

// InsertMany starts a new InsertManyOptionsBuilder.
func InsertMany() *InsertManyOptionsBuilder { return &InsertManyOptionsBuilder{} }

func (b *InsertManyOptionsBuilder) OptionsSetters() []func(*InsertManyOptions) error { return b.Opts }

func (b *InsertManyOptionsBuilder) SetBypassDocumentValidation(v bool) *InsertManyOptionsBuilder {
	b.Opts = append(b.Opts, func(o *InsertManyOptions) error { o.BypassDocumentValidation = &v; return nil })
	return b
}

func (b *InsertManyOptionsBuilder) SetOrdered(v bool) *InsertManyOptionsBuilder {
	b.Opts = append(b.Opts, func(o *InsertManyOptions) error { o.Ordered = &v; return nil })
	return b
}

// FindOptions configures Find.
type FindOptions struct {
	Sort            bsoncore.Document
	Projection      bsoncore.Document
	Skip            *int64
	Limit           *int64
	BatchSize       *int32
	NoCursorTimeout *bool
	Tailable        *bool
	AwaitData       *bool
	Exhaust         *bool
}

// FindOptionsBuilder accumulates FindOptions setters.
type FindOptionsBuilder struct {
	Opts []func(*FindOptions) error
}

// Find starts a new FindOptionsBuilder.
func Find() *FindOptionsBuilder { return &FindOptionsBuilder{} }

func (b *FindOptionsBuilder) OptionsSetters() []func(*FindOptions) error { return b.Opts }

func (b *FindOptionsBuilder) SetSort(doc bsoncore.Document) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Sort = doc; return nil })
	return b
}

func (b *FindOptionsBuilder) SetProjection(doc bsoncore.Document) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Projection = doc; return nil })
	return b
}

func (b *FindOptionsBuilder) SetSkip(v int64) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Skip = &v; return nil })
	return b
}

func (b *FindOptionsBuilder) SetLimit(v int64) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Limit = &v; return nil })
	return b
}

func (b *FindOptionsBuilder) SetBatchSize(v int32) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.BatchSize = &v; return nil })
	return b
}

func (b *FindOptionsBuilder) SetNoCursorTimeout(v bool) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.NoCursorTimeout = &v; return nil })
	return b
}

// SetTailable marks the cursor tailable against a capped collection; set
// awaitData so the server blocks briefly for new documents instead of
// returning an empty batch immediately.
func (b *FindOptionsBuilder) SetTailable(v, awaitData bool) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Tailable = &v; o.AwaitData = &awaitData; return nil })
	return b
}

// SetExhaust requests exhaust-mode getMore streaming: the server pushes
// further batches unprompted over the same connection until it sends one
// without moreToCome set (x/mongo/driver/batchcursor.WithExhaust).
func (b *FindOptionsBuilder) SetExhaust(v bool) *FindOptionsBuilder {
	b.Opts = append(b.Opts, func(o *FindOptions) error { o.Exhaust = &v; return nil })
	return b
}

// UpdateOptions configures UpdateOne/UpdateMany.
type UpdateOptions struct {
	Upsert                   *bool
	BypassDocumentValidation *bool
}

// UpdateOptionsBuilder accumulates UpdateOptions setters.
type UpdateOptionsBuilder struct {
	Opts []func(*UpdateOptions) error
}

// Update starts a new UpdateOptionsBuilder.
func Update() *UpdateOptionsBuilder { return &UpdateOptionsBuilder{} }

func (b *UpdateOptionsBuilder) OptionsSetters() []func(*UpdateOptions) error { return b.Opts }

func (b *UpdateOptionsBuilder) SetUpsert(v bool) *UpdateOptionsBuilder {
	b.Opts = append(b.Opts, func(o *UpdateOptions) error { o.Upsert = &v; return nil })
	return b
}

func (b *UpdateOptionsBuilder) SetBypassDocumentValidation(v bool) *UpdateOptionsBuilder {
	b.Opts = append(b.Opts, func(o *UpdateOptions) error { o.BypassDocumentValidation = &v; return nil })
	return b
}

// DeleteOptions configures DeleteOne/DeleteMany.
type DeleteOptions struct{}

// DeleteOptionsBuilder accumulates DeleteOptions setters.
type DeleteOptionsBuilder struct {
	Opts []func(*DeleteOptions) error
}

// Delete starts a new DeleteOptionsBuilder.
func Delete() *DeleteOptionsBuilder { return &DeleteOptionsBuilder{} }

func (b *DeleteOptionsBuilder) OptionsSetters() []func(*DeleteOptions) error { return b.Opts }

// CountOptions configures CountDocuments.
type CountOptions struct {
	Limit *int64
	Skip  *int64
}

// CountOptionsBuilder accumulates CountOptions setters.
type CountOptionsBuilder struct {
	Opts []func(*CountOptions) error
}

// Count starts a new CountOptionsBuilder.
func Count() *CountOptionsBuilder { return &CountOptionsBuilder{} }

func (b *CountOptionsBuilder) OptionsSetters() []func(*CountOptions) error { return b.Opts }

func (b *CountOptionsBuilder) SetLimit(v int64) *CountOptionsBuilder {
	b.Opts = append(b.Opts, func(o *CountOptions) error { o.Limit = &v; return nil })
	return b
}

func (b *CountOptionsBuilder) SetSkip(v int64) *CountOptionsBuilder {
	b.Opts = append(b.Opts, func(o *CountOptions) error { o.Skip = &v; return nil })
	return b
}

// mergeOptions folds a slice of builders' setter functions onto a fresh
// options value, matching the style of options.MergeXxxOptions helpers.
func mergeOptions[T any](builders []func(*T) error) (*T, error) {
	opts := new(T)
	for _, set := range builders {
		if err := set(opts); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// MergeInsertOneOptions flattens a list of InsertOneOptionsBuilders.
func MergeInsertOneOptions(builders ...*InsertOneOptionsBuilder) (*InsertOneOptions, error) {
	var setters []func(*InsertOneOptions) error
	for _, b := range builders {
		if b != nil {
			setters = append(setters, b.Opts...)
		}
	}
	return mergeOptions(setters)
}

// MergeInsertManyOptions flattens a list of InsertManyOptionsBuilders.
func MergeInsertManyOptions(builders ...*InsertManyOptionsBuilder) (*InsertManyOptions, error) {
	var setters []func(*InsertManyOptions) error
	for _, b := range builders {
		if b != nil {
			setters = append(setters, b.Opts...)
		}
	}
	return mergeOptions(setters)
}

// MergeFindOptions flattens a list of FindOptionsBuilders.
func MergeFindOptions(builders ...*FindOptionsBuilder) (*FindOptions, error) {
	var setters []func(*FindOptions) error
	for _, b := range builders {
		if b != nil {
			setters = append(setters, b.Opts...)
		}
	}
	return mergeOptions(setters)
}

// MergeUpdateOptions flattens a list of UpdateOptionsBuilders.
func MergeUpdateOptions(builders ...*UpdateOptionsBuilder) (*UpdateOptions, error) {
	var setters []func(*UpdateOptions) error
	for _, b := range builders {
		if b != nil {
			setters = append(setters, b.Opts...)
		}
	}
	return mergeOptions(setters)
}

// MergeCountOptions flattens a list of CountOptionsBuilders.
func MergeCountOptions(builders ...*CountOptionsBuilder) (*CountOptions, error) {
	var setters []func(*CountOptions) error
	for _, b := range builders {
		if b != nil {
			setters = append(setters, b.Opts...)
		}
	}
	return mergeOptions(setters)
}
