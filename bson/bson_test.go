// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
)

func TestMarshalDPreservesOrder(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	doc, err := Marshal(D{
		{Key: "find", Value: "coll"},
		{Key: "filter", Value: D{{Key: "x", Value: int32(3)}}},
		{Key: "_id", Value: oid},
		{Key: "tags", Value: A{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	elems, err := doc.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	wantKeys := []string{"find", "filter", "_id", "tags"}
	if len(elems) != len(wantKeys) {
		t.Fatalf("got %d elements, want %d", len(elems), len(wantKeys))
	}
	for i, k := range wantKeys {
		if elems[i].Key() != k {
			t.Fatalf("element %d key = %q, want %q (D must preserve insertion order)", i, elems[i].Key(), k)
		}
	}
}

func TestMarshalMIsDeterministic(t *testing.T) {
	t.Parallel()

	m := M{"zeta": int32(1), "alpha": int32(2), "mid": int32(3)}
	first, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("two Marshals of the same M differ:\n% x\n% x", []byte(first), []byte(again))
		}
	}

	elems, err := first.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if elems[0].Key() != "alpha" || elems[1].Key() != "mid" || elems[2].Key() != "zeta" {
		t.Fatalf("M keys not emitted in sorted order: %v, %v, %v", elems[0].Key(), elems[1].Key(), elems[2].Key())
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	in := M{
		"str":    "value",
		"i32":    int32(42),
		"i64":    int64(1) << 40,
		"f":      1.5,
		"ok":     true,
		"nil":    nil,
		"oid":    oid,
		"ts":     primitive.Timestamp{T: 7, I: 3},
		"rx":     primitive.Regex{Pattern: "^a", Options: "i"},
		"bin":    primitive.Binary{Subtype: primitive.BinaryGeneric, Data: []byte{1, 2, 3}},
		"nested": M{"k": "v"},
		"arr":    A{int32(1), "two", 3.0},
	}

	doc, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var out M
	if err := Unmarshal(doc, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestUnmarshalDPreservesOrder(t *testing.T) {
	t.Parallel()

	in := D{
		{Key: "c", Value: int32(1)},
		{Key: "a", Value: int32(2)},
		{Key: "b", Value: int32(3)},
	}
	doc, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out D
	if err := UnmarshalD(doc, &out); err != nil {
		t.Fatalf("UnmarshalD: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestMarshalRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	if _, err := Marshal(42); err == nil {
		t.Fatalf("Marshal(42) succeeded; only document shapes are valid at top level")
	}
	if _, err := Marshal(D{{Key: "ch", Value: make(chan int)}}); err == nil {
		t.Fatalf("expected an error for a channel value")
	}
}
