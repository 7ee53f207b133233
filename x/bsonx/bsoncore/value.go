// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"fmt"
	"math"
	"unicode/utf8"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
)

// Value is a view into the bytes backing a single BSON element's value,
// tagged with its wire type. It never copies the underlying buffer; the
// same lifetime rules as Cursor batches apply: a Value is
// only valid as long as the buffer it was read from is unmodified.
type Value struct {
	Type Type
	Data []byte
}

// Double returns the value as a float64, panicking if the type tag
// doesn't match. Use DoubleOK for the non-panicking form.
func (v Value) Double() float64 {
	f, ok := v.DoubleOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeDouble, Got: v.Type})
	}
	return f
}

func (v Value) DoubleOK() (float64, bool) {
	if v.Type != TypeDouble || len(v.Data) < 8 {
		return 0, false
	}
	return math.Float64frombits(uint64(readi64(v.Data))), true
}

func (v Value) StringValue() string {
	s, ok := v.StringValueOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeString, Got: v.Type})
	}
	return s
}

func (v Value) StringValueOK() (string, bool) {
	if v.Type != TypeString {
		return "", false
	}
	length, rem, ok := readLengthBytes(v.Data)
	if !ok || int(length) > len(rem)+4 || length < 1 {
		return "", false
	}
	str := rem[:length-1]
	if !utf8.Valid(str) {
		return "", false
	}
	return string(str), true
}

// JavaScriptOK returns the value as JavaScript code.
func (v Value) JavaScriptOK() (string, bool) {
	if v.Type != TypeJavaScript {
		return "", false
	}
	return readLengthPrefixedString(v.Data)
}

// SymbolOK returns the value as a deprecated symbol.
func (v Value) SymbolOK() (string, bool) {
	if v.Type != TypeSymbol {
		return "", false
	}
	return readLengthPrefixedString(v.Data)
}

func readLengthPrefixedString(data []byte) (string, bool) {
	length, rem, ok := readLengthBytes(data)
	if !ok || int(length) > len(rem)+4 || length < 1 {
		return "", false
	}
	return string(rem[:length-1]), true
}

func (v Value) Document() Document {
	d, ok := v.DocumentOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeEmbeddedDocument, Got: v.Type})
	}
	return d
}

func (v Value) DocumentOK() (Document, bool) {
	if v.Type != TypeEmbeddedDocument {
		return nil, false
	}
	return Document(v.Data), true
}

func (v Value) Array() Array {
	a, ok := v.ArrayOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeArray, Got: v.Type})
	}
	return a
}

func (v Value) ArrayOK() (Array, bool) {
	if v.Type != TypeArray {
		return nil, false
	}
	return Array(v.Data), true
}

func (v Value) Binary() (subtype byte, data []byte) {
	st, d, ok := v.BinaryOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeBinary, Got: v.Type})
	}
	return st, d
}

func (v Value) BinaryOK() (subtype byte, data []byte, ok bool) {
	if v.Type != TypeBinary || len(v.Data) < 5 {
		return 0, nil, false
	}
	length := readi32(v.Data)
	if int(length) < 0 || len(v.Data) < int(5+length) {
		return 0, nil, false
	}
	subtype = v.Data[4]
	if subtype == 0x02 && length >= 4 {
		// old binary subtype nests a redundant inner length; skip past it.
		return subtype, v.Data[9 : 5+length], true
	}
	return subtype, v.Data[5 : 5+length], true
}

func (v Value) ObjectID() primitive.ObjectID {
	oid, ok := v.ObjectIDOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeObjectID, Got: v.Type})
	}
	return oid
}

func (v Value) ObjectIDOK() (primitive.ObjectID, bool) {
	if v.Type != TypeObjectID || len(v.Data) < 12 {
		return primitive.NilObjectID, false
	}
	var oid primitive.ObjectID
	copy(oid[:], v.Data[:12])
	return oid, true
}

func (v Value) Boolean() bool {
	b, ok := v.BooleanOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeBoolean, Got: v.Type})
	}
	return b
}

func (v Value) BooleanOK() (bool, bool) {
	if v.Type != TypeBoolean || len(v.Data) < 1 {
		return false, false
	}
	return v.Data[0] == 0x01, true
}

func (v Value) DateTime() int64 {
	dt, ok := v.DateTimeOK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeDateTime, Got: v.Type})
	}
	return dt
}

func (v Value) DateTimeOK() (int64, bool) {
	if v.Type != TypeDateTime || len(v.Data) < 8 {
		return 0, false
	}
	return readi64(v.Data), true
}

func (v Value) RegexOK() (pattern, options string, ok bool) {
	if v.Type != TypeRegex {
		return "", "", false
	}
	pattern, rem, ok := readCString(v.Data)
	if !ok {
		return "", "", false
	}
	options, _, ok = readCString(rem)
	if !ok {
		return "", "", false
	}
	return pattern, options, true
}

func (v Value) Int32() int32 {
	i, ok := v.Int32OK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeInt32, Got: v.Type})
	}
	return i
}

func (v Value) Int32OK() (int32, bool) {
	if v.Type != TypeInt32 || len(v.Data) < 4 {
		return 0, false
	}
	return readi32(v.Data), true
}

// DBPointerOK decodes the deprecated DBPointer type. The core never
// emits this type; it is decode-only, kept so legacy replies round-trip
// instead of failing iteration.
func (v Value) DBPointerOK() (ns string, oid primitive.ObjectID, ok bool) {
	if v.Type != TypeDBPointer {
		return "", primitive.NilObjectID, false
	}
	length, rem, lok := readLengthBytes(v.Data)
	if !lok || int(length) < 1 || int(length) > len(rem) {
		return "", primitive.NilObjectID, false
	}
	ns = string(rem[:length-1])
	rest := rem[length:]
	if len(rest) < 12 {
		return "", primitive.NilObjectID, false
	}
	copy(oid[:], rest[:12])
	return ns, oid, true
}

func (v Value) TimestampOK() (t, i uint32, ok bool) {
	if v.Type != TypeTimestamp || len(v.Data) < 8 {
		return 0, 0, false
	}
	return readu32(v.Data[4:]), readu32(v.Data), true
}

func (v Value) Int64() int64 {
	i, ok := v.Int64OK()
	if !ok {
		panic(TypeMismatchError{Wanted: TypeInt64, Got: v.Type})
	}
	return i
}

func (v Value) Int64OK() (int64, bool) {
	if v.Type != TypeInt64 || len(v.Data) < 8 {
		return 0, false
	}
	return readi64(v.Data), true
}

// AsInt64 widens any BSON numeric type to an int64, which command-reply
// parsing needs because the server is free to reply with double, int32,
// or int64 for fields like "ok" or "n" (mirrors core/command's ok-field
// handling across TypeDouble/TypeInt32/TypeInt64).
func (v Value) AsInt64() (int64, bool) {
	switch v.Type {
	case TypeInt64:
		n, ok := v.Int64OK()
		return n, ok
	case TypeInt32:
		n, ok := v.Int32OK()
		return int64(n), ok
	case TypeDouble:
		f, ok := v.DoubleOK()
		return int64(f), ok
	default:
		return 0, false
	}
}

// Validate recursively validates a value's internal structure.
func (v Value) Validate() error {
	switch v.Type {
	case TypeEmbeddedDocument:
		return Document(v.Data).Validate()
	case TypeArray:
		return Array(v.Data).Validate()
	case TypeString, TypeJavaScript, TypeSymbol:
		_, rem, ok := readLengthBytes(v.Data)
		if !ok {
			return NewInsufficientBytesError(v.Data, 4)
		}
		if len(rem) == 0 || rem[len(rem)-1] != 0x00 {
			return ErrMissingNull
		}
	case TypeBinary:
		if len(v.Data) < 5 {
			return NewInsufficientBytesError(v.Data, 5)
		}
	case TypeObjectID:
		if len(v.Data) < 12 {
			return NewInsufficientBytesError(v.Data, 12)
		}
	case TypeBoolean:
		if len(v.Data) < 1 {
			return NewInsufficientBytesError(v.Data, 1)
		}
	case TypeDouble, TypeDateTime, TypeInt64, TypeTimestamp:
		if len(v.Data) < 8 {
			return NewInsufficientBytesError(v.Data, 8)
		}
	case TypeInt32:
		if len(v.Data) < 4 {
			return NewInsufficientBytesError(v.Data, 4)
		}
	case TypeRegex:
		_, _, ok := v.RegexOK()
		if !ok {
			return ErrMissingNull
		}
	case TypeDBPointer:
		_, _, ok := v.DBPointerOK()
		if !ok {
			return NewInsufficientBytesError(v.Data, 16)
		}
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		// no payload
	}
	return nil
}

// DebugString renders a human-readable form of v for diagnostics; it
// never panics even on malformed data.
func (v Value) DebugString() string {
	switch v.Type {
	case TypeEmbeddedDocument:
		return Document(v.Data).DebugString()
	case TypeArray:
		return Array(v.Data).DebugString()
	case TypeString:
		s, _ := v.StringValueOK()
		return fmt.Sprintf("%q", s)
	default:
		return fmt.Sprintf("%s(%v)", v.Type, v.Data)
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeEmbeddedDocument:
		return Document(v.Data).String()
	case TypeArray:
		return Array(v.Data).String()
	case TypeString:
		s, _ := v.StringValueOK()
		return fmt.Sprintf("%q", s)
	case TypeInt32:
		n, _ := v.Int32OK()
		return fmt.Sprintf("%d", n)
	case TypeInt64:
		n, _ := v.Int64OK()
		return fmt.Sprintf("%d", n)
	case TypeDouble:
		f, _ := v.DoubleOK()
		return fmt.Sprintf("%v", f)
	case TypeBoolean:
		b, _ := v.BooleanOK()
		return fmt.Sprintf("%v", b)
	case TypeNull:
		return "null"
	default:
		return v.Type.String()
	}
}

func readCString(b []byte) (string, []byte, bool) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), b[i+1:], true
		}
	}
	return "", b, false
}
