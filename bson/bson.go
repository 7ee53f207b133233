// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson converts between the primitive document shapes (D, M, A)
// and bsoncore's raw byte form. It is the layer application code uses to
// build filters and command arguments without touching the byte-level
// builder directly; the driver's own internals build commands straight
// on bsoncore and never round-trip through this package.
package bson

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
)

// Re-exported shapes so callers can write bson.D / bson.M / bson.A.
type (
	D = primitive.D
	E = primitive.E
	M = primitive.M
	A = primitive.A
)

// Marshal encodes val into a raw BSON document. Accepted top-level types
// are D, M, and an already-encoded bsoncore.Document (returned as-is).
// Map keys are emitted in sorted order so encoding an M is
// deterministic; use D where the wire order itself matters.
func Marshal(val interface{}) (bsoncore.Document, error) {
	switch v := val.(type) {
	case nil:
		return nil, fmt.Errorf("bson: cannot marshal nil")
	case bsoncore.Document:
		return v, nil
	case D:
		b := bsoncore.NewDocumentBuilder()
		for _, e := range v {
			if err := appendValue(b, e.Key, e.Value); err != nil {
				return nil, err
			}
		}
		doc, _, err := b.Finish()
		return doc, err
	case M:
		b := bsoncore.NewDocumentBuilder()
		for _, key := range sortedKeys(v) {
			if err := appendValue(b, key, v[key]); err != nil {
				return nil, err
			}
		}
		doc, _, err := b.Finish()
		return doc, err
	default:
		return nil, fmt.Errorf("bson: cannot marshal %T as a document", val)
	}
}

func sortedKeys(m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendValue(b *bsoncore.Builder, key string, val interface{}) error {
	switch v := val.(type) {
	case nil:
		return b.AppendNullElement(key)
	case bool:
		return b.AppendBooleanElement(key, v)
	case int32:
		return b.AppendInt32Element(key, v)
	case int64:
		return b.AppendInt64Element(key, v)
	case int:
		if int64(v) >= -1<<31 && int64(v) < 1<<31 {
			return b.AppendInt32Element(key, int32(v))
		}
		return b.AppendInt64Element(key, int64(v))
	case float64:
		return b.AppendDoubleElement(key, v)
	case string:
		return b.AppendStringElement(key, v)
	case []byte:
		return b.AppendBinaryElement(key, primitive.BinaryGeneric, v)
	case time.Time:
		return b.AppendDateTimeElement(key, v.UnixMilli())
	case primitive.ObjectID:
		return b.AppendObjectIDElement(key, v)
	case primitive.DateTime:
		return b.AppendDateTimeElement(key, int64(v))
	case primitive.Timestamp:
		return b.AppendTimestampElement(key, v.T, v.I)
	case primitive.Regex:
		return b.AppendRegexElement(key, v.Pattern, v.Options)
	case primitive.Binary:
		return b.AppendBinaryElement(key, v.Subtype, v.Data)
	case primitive.JavaScript:
		return b.AppendJavaScriptElement(key, string(v))
	case primitive.CodeWithScope:
		scope, err := Marshal(v.Scope)
		if err != nil {
			return err
		}
		return b.AppendCodeWithScopeElement(key, string(v.Code), scope)
	case primitive.Symbol:
		return b.AppendSymbolElement(key, string(v))
	case primitive.Null:
		return b.AppendNullElement(key)
	case primitive.Undefined:
		return b.AppendUndefinedElement(key)
	case primitive.MinKey:
		return b.AppendMinKeyElement(key)
	case primitive.MaxKey:
		return b.AppendMaxKeyElement(key)
	case D:
		nested, err := Marshal(v)
		if err != nil {
			return err
		}
		return b.AppendDocumentElement(key, nested)
	case M:
		nested, err := Marshal(v)
		if err != nil {
			return err
		}
		return b.AppendDocumentElement(key, nested)
	case A:
		if err := b.StartArray(key); err != nil {
			return err
		}
		for i, elem := range v {
			if err := appendValue(b, itoa(i), elem); err != nil {
				return err
			}
		}
		return b.FinishArray()
	case bsoncore.Document:
		return b.AppendDocumentElement(key, v)
	case bsoncore.Value:
		return b.AppendValueElement(key, v)
	default:
		return fmt.Errorf("bson: cannot marshal %T for key %q", val, key)
	}
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// Unmarshal decodes doc into an unordered M. Embedded documents become
// nested M values and arrays become A values; element order is lost, so
// callers needing it should use UnmarshalD.
func Unmarshal(doc bsoncore.Document, out *M) error {
	iter, err := doc.Iterator()
	if err != nil {
		return err
	}
	m := make(M)
	for iter.Next() {
		e := iter.Element()
		v, err := valueToGo(e.Value())
		if err != nil {
			return err
		}
		m[e.Key()] = v
	}
	if err := iter.Err(); err != nil {
		return err
	}
	*out = m
	return nil
}

// UnmarshalD decodes doc into a D, preserving element order.
func UnmarshalD(doc bsoncore.Document, out *D) error {
	iter, err := doc.Iterator()
	if err != nil {
		return err
	}
	var d D
	for iter.Next() {
		e := iter.Element()
		v, err := valueToGo(e.Value())
		if err != nil {
			return err
		}
		d = append(d, E{Key: e.Key(), Value: v})
	}
	if err := iter.Err(); err != nil {
		return err
	}
	*out = d
	return nil
}

// valueToGo converts a raw bsoncore.Value into the matching primitive or
// built-in Go value, copying out of the underlying buffer so the result
// outlives the batch that carried it.
func valueToGo(v bsoncore.Value) (interface{}, error) {
	switch v.Type {
	case bsoncore.TypeDouble:
		f, _ := v.DoubleOK()
		return f, nil
	case bsoncore.TypeString:
		s, ok := v.StringValueOK()
		if !ok {
			return nil, fmt.Errorf("bson: malformed string value")
		}
		return s, nil
	case bsoncore.TypeEmbeddedDocument:
		var m M
		if err := Unmarshal(v.Document(), &m); err != nil {
			return nil, err
		}
		return m, nil
	case bsoncore.TypeArray:
		values, err := v.Array().Values()
		if err != nil {
			return nil, err
		}
		arr := make(A, 0, len(values))
		for _, av := range values {
			gv, err := valueToGo(av)
			if err != nil {
				return nil, err
			}
			arr = append(arr, gv)
		}
		return arr, nil
	case bsoncore.TypeBinary:
		subtype, data, _ := v.BinaryOK()
		cp := make([]byte, len(data))
		copy(cp, data)
		return primitive.Binary{Subtype: subtype, Data: cp}, nil
	case bsoncore.TypeObjectID:
		oid, _ := v.ObjectIDOK()
		return oid, nil
	case bsoncore.TypeBoolean:
		b, _ := v.BooleanOK()
		return b, nil
	case bsoncore.TypeDateTime:
		dt, _ := v.DateTimeOK()
		return primitive.DateTime(dt), nil
	case bsoncore.TypeNull:
		return nil, nil
	case bsoncore.TypeUndefined:
		return primitive.Undefined{}, nil
	case bsoncore.TypeRegex:
		pattern, options, _ := v.RegexOK()
		return primitive.Regex{Pattern: pattern, Options: options}, nil
	case bsoncore.TypeInt32:
		n, _ := v.Int32OK()
		return n, nil
	case bsoncore.TypeTimestamp:
		t, i, _ := v.TimestampOK()
		return primitive.Timestamp{T: t, I: i}, nil
	case bsoncore.TypeInt64:
		n, _ := v.Int64OK()
		return n, nil
	case bsoncore.TypeJavaScript:
		code, ok := v.JavaScriptOK()
		if !ok {
			return nil, fmt.Errorf("bson: malformed javascript value")
		}
		return primitive.JavaScript(code), nil
	case bsoncore.TypeSymbol:
		sym, ok := v.SymbolOK()
		if !ok {
			return nil, fmt.Errorf("bson: malformed symbol value")
		}
		return primitive.Symbol(sym), nil
	case bsoncore.TypeMinKey:
		return primitive.MinKey{}, nil
	case bsoncore.TypeMaxKey:
		return primitive.MaxKey{}, nil
	case bsoncore.TypeDBPointer:
		ns, oid, _ := v.DBPointerOK()
		return primitive.DBPointer{DB: ns, Pointer: oid}, nil
	default:
		return nil, fmt.Errorf("bson: cannot decode %s", v.Type)
	}
}
