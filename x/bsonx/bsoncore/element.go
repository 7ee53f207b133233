// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "fmt"

// Element is a raw bytes view of one (tag, cstring key, value) triple
// inside a Document or Array.
type Element []byte

// ReadElement reads the first element from src and returns the raw
// bytes for that element along with the remaining bytes in src.
func ReadElement(src []byte) (Element, []byte, bool) {
	if len(src) < 2 {
		return nil, src, false
	}
	key, rem, ok := readCString(src[1:])
	if !ok {
		return nil, src, false
	}
	valStart := len(src) - len(rem)
	val, ok := valueLength(Type(src[0]), rem)
	if !ok {
		return nil, src, false
	}
	end := valStart + val
	if end > len(src) {
		return nil, src, false
	}
	_ = key
	return Element(src[:end]), src[end:], true
}

// valueLength returns the number of bytes the value of type t occupies
// at the start of data, or false if data is too short to tell.
func valueLength(t Type, data []byte) (int, bool) {
	switch t {
	case TypeDouble, TypeDateTime, TypeInt64, TypeTimestamp:
		if len(data) < 8 {
			return 0, false
		}
		return 8, true
	case TypeInt32:
		if len(data) < 4 {
			return 0, false
		}
		return 4, true
	case TypeBoolean:
		if len(data) < 1 {
			return 0, false
		}
		return 1, true
	case TypeObjectID:
		if len(data) < 12 {
			return 0, false
		}
		return 12, true
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		return 0, true
	case TypeString, TypeJavaScript, TypeSymbol:
		length, _, ok := readLengthBytes(data)
		if !ok {
			return 0, false
		}
		total := 4 + int(length)
		if total > len(data) {
			return 0, false
		}
		return total, true
	case TypeEmbeddedDocument, TypeArray, TypeCodeWithScope:
		length, _, ok := ReadLength(data)
		if !ok {
			return 0, false
		}
		if int(length) > len(data) {
			return 0, false
		}
		return int(length), true
	case TypeBinary:
		if len(data) < 5 {
			return 0, false
		}
		length := readi32(data)
		total := 5 + int(length)
		if length < 0 || total > len(data) {
			return 0, false
		}
		return total, true
	case TypeRegex:
		_, rem, ok := readCString(data)
		if !ok {
			return 0, false
		}
		_, rem2, ok := readCString(rem)
		if !ok {
			return 0, false
		}
		return len(data) - len(rem2), true
	case TypeDBPointer:
		length, rem, ok := readLengthBytes(data)
		if !ok {
			return 0, false
		}
		total := 4 + int(length) + 12
		if total > len(data) || int(length) > len(rem) {
			return 0, false
		}
		return total, true
	default:
		return 0, false
	}
}

// Key returns the element's key.
func (e Element) Key() string {
	k, _, _ := readCString(e[1:])
	return k
}

// KeyBytes returns the raw bytes backing the key, avoiding an
// allocation for callers that only need to compare the key.
func (e Element) KeyBytes() []byte {
	for i := 1; i < len(e); i++ {
		if e[i] == 0x00 {
			return e[1:i]
		}
	}
	return nil
}

// Value returns the element's tagged value.
func (e Element) Value() Value {
	_, rem, _ := readCString(e[1:])
	return Value{Type: Type(e[0]), Data: rem}
}

// Validate checks that e's key is syntactically valid and its value is
// internally consistent.
func (e Element) Validate() error {
	if len(e) < 2 {
		return NewInsufficientBytesError(e, 2)
	}
	_, rem, ok := readCString(e[1:])
	if !ok {
		return ErrInvalidKey
	}
	length, ok := valueLength(Type(e[0]), rem)
	if !ok {
		return NewInsufficientBytesError(e, 1)
	}
	if length > len(rem) {
		return NewInsufficientBytesError(e, length)
	}
	return e.Value().Validate()
}

func (e Element) DebugString() string {
	return fmt.Sprintf("%s: %s", e.Key(), e.Value().DebugString())
}

func (e Element) String() string {
	return fmt.Sprintf("%q: %s", e.Key(), e.Value().String())
}
