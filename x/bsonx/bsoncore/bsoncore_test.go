// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
)

func TestBuilderDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	b := NewDocumentBuilder()
	if err := b.AppendStringElement("name", "widget"); err != nil {
		t.Fatalf("AppendStringElement: %v", err)
	}
	if err := b.AppendInt32Element("qty", 7); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	if err := b.AppendBooleanElement("active", true); err != nil {
		t.Fatalf("AppendBooleanElement: %v", err)
	}
	if err := b.AppendObjectIDElement("_id", oid); err != nil {
		t.Fatalf("AppendObjectIDElement: %v", err)
	}
	if err := b.StartDocument("meta"); err != nil {
		t.Fatalf("StartDocument: %v", err)
	}
	if err := b.AppendDoubleElement("weight", 1.5); err != nil {
		t.Fatalf("AppendDoubleElement (nested): %v", err)
	}
	if err := b.FinishDocument(); err != nil {
		t.Fatalf("FinishDocument: %v", err)
	}
	if err := b.StartArray("tags"); err != nil {
		t.Fatalf("StartArray: %v", err)
	}
	if err := b.AppendStringElement("0", "red"); err != nil {
		t.Fatalf("AppendStringElement (array): %v", err)
	}
	if err := b.AppendStringElement("1", "blue"); err != nil {
		t.Fatalf("AppendStringElement (array): %v", err)
	}
	if err := b.FinishArray(); err != nil {
		t.Fatalf("FinishArray: %v", err)
	}

	doc, bits, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if bits != 0 {
		t.Fatalf("unexpected validation bits: %v", bits)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	v, err := doc.LookupErr("name")
	if err != nil {
		t.Fatalf("LookupErr(name): %v", err)
	}
	if s, ok := v.StringValueOK(); !ok || s != "widget" {
		t.Fatalf("name = %s, spew: %s", spew.Sdump(v), spew.Sdump(doc))
	}

	v, err = doc.LookupErr("qty")
	if err != nil {
		t.Fatalf("LookupErr(qty): %v", err)
	}
	if n, ok := v.Int32OK(); !ok || n != 7 {
		t.Fatalf("qty = %v, want 7", n)
	}

	v, err = doc.LookupErr("_id")
	if err != nil {
		t.Fatalf("LookupErr(_id): %v", err)
	}
	if got, ok := v.ObjectIDOK(); !ok || got != oid {
		t.Fatalf("_id = %v, want %v", got, oid)
	}

	v, err = doc.LookupErr("meta")
	if err != nil {
		t.Fatalf("LookupErr(meta): %v", err)
	}
	metaDoc, ok := v.DocumentOK()
	if !ok {
		t.Fatalf("meta is not a document: %s", spew.Sdump(v))
	}
	v, err = metaDoc.LookupErr("weight")
	if err != nil {
		t.Fatalf("LookupErr(meta.weight): %v", err)
	}
	if f, ok := v.DoubleOK(); !ok || f != 1.5 {
		t.Fatalf("meta.weight = %v, want 1.5", f)
	}

	v, err = doc.LookupErr("tags")
	if err != nil {
		t.Fatalf("LookupErr(tags): %v", err)
	}
	arr, ok := v.ArrayOK()
	if !ok {
		t.Fatalf("tags is not an array: %s", spew.Sdump(v))
	}
	values, err := arr.Values()
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len(tags) = %d, want 2", len(values))
	}
	if s, _ := values[0].StringValueOK(); s != "red" {
		t.Fatalf("tags[0] = %s, want red", s)
	}
	if s, _ := values[1].StringValueOK(); s != "blue" {
		t.Fatalf("tags[1] = %s, want blue", s)
	}

	elems, err := doc.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if len(elems) != 6 {
		t.Fatalf("len(Elements()) = %d, want 6: %s", len(elems), spew.Sdump(elems))
	}
}

func TestBuilderKeyValidationBits(t *testing.T) {
	t.Parallel()

	b := NewDocumentBuilder()
	if err := b.AppendInt32Element("a.b", 1); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	if err := b.AppendInt32Element("$bad", 2); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	_, bits, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if bits&BitDotInKey == 0 {
		t.Errorf("expected BitDotInKey set, got %v", bits)
	}
	if bits&BitDollarInitKey == 0 {
		t.Errorf("expected BitDollarInitKey set, got %v", bits)
	}
}

func TestBuilderPoisonedAfterSizeCap(t *testing.T) {
	t.Parallel()

	b := NewDocumentBuilderWithLimit(32)
	var lastErr error
	for i := 0; i < 64; i++ {
		lastErr = b.AppendStringElement("field", "some reasonably long string value")
	}
	if lastErr == nil {
		t.Fatalf("expected an error once the builder exceeded its size cap")
	}
	if _, _, err := b.Finish(); err == nil {
		t.Fatalf("expected Finish to return the poison error")
	}
}

func TestDocumentFromReaderRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewDocumentBuilder()
	if err := b.AppendStringElement("k", "v"); err != nil {
		t.Fatalf("AppendStringElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var buf []byte
	buf = doc.Append(buf)
	if int32(len(buf)) != doc.Len() {
		t.Fatalf("Append produced %d bytes, Len() reports %d", len(buf), doc.Len())
	}

	got, err := NewDocumentFromReader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewDocumentFromReader: %v", err)
	}
	v, err := got.LookupErr("k")
	if err != nil {
		t.Fatalf("LookupErr: %v", err)
	}
	if s, _ := v.StringValueOK(); s != "v" {
		t.Fatalf("k = %s, want v", s)
	}
}

func TestEncodeHelloWorldExactBytes(t *testing.T) {
	t.Parallel()

	b := NewDocumentBuilder()
	if err := b.AppendStringElement("hello", "world"); err != nil {
		t.Fatalf("AppendStringElement: %v", err)
	}
	doc, bits, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if bits != 0 {
		t.Fatalf("unexpected validation bits: %v", bits)
	}

	want := []byte{
		0x16, 0x00, 0x00, 0x00,
		0x02, 'h', 'e', 'l', 'l', 'o', 0x00,
		0x06, 0x00, 0x00, 0x00, 'w', 'o', 'r', 'l', 'd', 0x00,
		0x00,
	}
	if !bytes.Equal(doc, want) {
		t.Fatalf("encoded bytes = % x, want % x", []byte(doc), want)
	}
	if doc.Len() != int32(len(doc)) {
		t.Fatalf("length prefix %d does not equal byte count %d", doc.Len(), len(doc))
	}
}
