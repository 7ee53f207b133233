// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Document is a raw bytes representation of a BSON document: a 4-byte
// little-endian total length followed by a sequence of elements
// terminated by a 0x00 byte.
type Document []byte

// NewDocumentFromReader reads a single length-prefixed document from r.
// Only the length and trailing-null invariants are checked eagerly; use
// Validate for a full structural pass.
func NewDocumentFromReader(r io.Reader) (Document, error) {
	return newBufferFromReader(r)
}

func newBufferFromReader(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrNilReader
	}
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := readi32(lengthBytes[:])
	if length < 4 {
		return nil, lengthError("document", int(length), 4)
	}
	buf := make([]byte, length)
	copy(buf, lengthBytes[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// Len returns the total encoded length of d, as recorded in its length
// prefix — not len([]byte(d)), which may include trailing garbage.
func (d Document) Len() int32 {
	if len(d) < 4 {
		return 0
	}
	return readi32(d)
}

// Validate walks d end to end, checking the length-self-consistency
// invariant (Testable property #2) and validating every element.
func (d Document) Validate() error {
	length, rem, ok := ReadLength(d)
	if !ok {
		return NewInsufficientBytesError(d, 4)
	}
	if int(length) != len(d) {
		return lengthError("document", int(length), len(d))
	}
	if d[length-1] != 0x00 {
		return ErrMissingNull
	}

	remaining := int(length) - 4
	for remaining > 1 {
		elem, next, ok := ReadElement(rem)
		if !ok {
			return NewInsufficientBytesError(d, remaining)
		}
		if err := elem.Validate(); err != nil {
			return err
		}
		remaining -= len(elem)
		rem = next
	}
	if len(rem) < 1 || rem[0] != 0x00 {
		return ErrMissingNull
	}
	return nil
}

// Elements returns every element in d as a slice. It is a convenience
// wrapper over Iterator for callers that want all elements at once;
// repeated-key lookups should use Iterator directly, since all lookups
// by key are linear scans from the current position.
func (d Document) Elements() ([]Element, error) {
	var elems []Element
	iter, err := d.Iterator()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		elems = append(elems, iter.Element())
	}
	return elems, iter.Err()
}

// Iterator returns a positioned-before-the-first-element Iterator over d.
func (d Document) Iterator() (*Iterator, error) {
	length, rem, ok := ReadLength(d)
	if !ok {
		return nil, NewInsufficientBytesError(d, 4)
	}
	if int(length) > len(d) {
		return nil, lengthError("document", int(length), len(d))
	}
	return &Iterator{rem: rem, remaining: int(length) - 4}, nil
}

// LookupErr restarts a fresh iterator and performs a linear scan for
// key; Document keeps no cached index.
func (d Document) LookupErr(key string) (Value, error) {
	iter, err := d.Iterator()
	if err != nil {
		return Value{}, err
	}
	for iter.Next() {
		if iter.Element().Key() == key {
			return iter.Element().Value(), nil
		}
	}
	if err := iter.Err(); err != nil {
		return Value{}, err
	}
	return Value{}, fmt.Errorf("bsoncore: key %q not found in document", key)
}

// Lookup is the panic-on-absence form of LookupErr.
func (d Document) Lookup(key string) Value {
	v, err := d.LookupErr(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Copy returns an independent copy of d's bytes.
func (d Document) Copy() Document {
	if d == nil {
		return nil
	}
	cp := make([]byte, len(d))
	copy(cp, d)
	return Document(cp)
}

// Append appends a pre-built Document onto dst as the final element of a
// larger growth buffer; primarily used by the wire framer's scatter
// gather path which appends whole documents without
// touching their internals.
func (d Document) Append(dst []byte) []byte {
	return append(dst, d...)
}

// DebugString outputs a best-effort human readable form, stopping at the
// first structural problem instead of panicking.
func (d Document) DebugString() string {
	if len(d) < 5 {
		return "<malformed>"
	}
	var buf bytes.Buffer
	buf.WriteString("Document")
	length, rem, _ := ReadLength(d)
	buf.WriteByte('(')
	buf.WriteString(strconv.Itoa(int(length)))
	buf.WriteString(")")
	buf.WriteByte('{')
	remaining := int(length) - 4
	first := true
	for remaining > 1 {
		elem, next, ok := ReadElement(rem)
		if !ok {
			fmt.Fprintf(&buf, "<malformed (%d)>", remaining)
			break
		}
		if !first {
			buf.WriteString(", ")
		}
		buf.WriteString(elem.DebugString())
		remaining -= len(elem)
		rem = next
		first = false
	}
	buf.WriteByte('}')
	return buf.String()
}

// String outputs an extended-JSON-ish rendering of d; returns "" if d is
// structurally invalid.
func (d Document) String() string {
	if len(d) < 5 {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	length, rem, ok := ReadLength(d)
	if !ok {
		return ""
	}
	remaining := int(length) - 4
	first := true
	for remaining > 1 {
		elem, next, ok := ReadElement(rem)
		if !ok {
			return ""
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.WriteString(elem.String())
		remaining -= len(elem)
		rem = next
		first = false
	}
	buf.WriteByte('}')
	return buf.String()
}

// IndexErr returns the i'th top-level element of d.
func (d Document) IndexErr(index uint) (Element, error) {
	iter, err := d.Iterator()
	if err != nil {
		return nil, err
	}
	var i uint
	for iter.Next() {
		if i == index {
			return iter.Element(), nil
		}
		i++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("bsoncore: index %d out of bounds", index)
}
