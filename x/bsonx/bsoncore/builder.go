// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"math"
	"unicode/utf8"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
)

// ValidationBit flags a non-fatal condition the Builder observed while
// appending. They never abort the append; callers that
// hand the finished Document to a write command must reject NotUTF8.
type ValidationBit uint8

const (
	// BitNotUTF8 is set when a key or string value was not well-formed UTF-8.
	BitNotUTF8 ValidationBit = 1 << iota
	// BitDotInKey is set when a top-level key contained '.'.
	BitDotInKey
	// BitDollarInitKey is set when a top-level key began with '$'.
	BitDollarInitKey
)

// Builder is an append-only BSON document constructor: a dynamic byte
// buffer with an explicit stack of pending-length offsets for nested
// documents/arrays, replacing the source's alloca+pointer-patching
// approach. A Builder is single-use and becomes poisoned (all further
// appends are no-ops returning the original error) once it overflows
// its size cap.
type Builder struct {
	buf     []byte
	stack   []int32 // byte offsets of each open document/array's length prefix
	bits    ValidationBit
	maxSize int32
	poisonErr error
}

// NewDocumentBuilder starts a new, empty top-level document using the
// default max document size: 16 MiB, used when no server is yet known.
func NewDocumentBuilder() *Builder {
	return NewDocumentBuilderWithLimit(DefaultMaxDocumentSize)
}

// NewDocumentBuilderWithLimit starts a new top-level document bounded by
// maxSize, which should be the negotiated maxBsonObjectSize of the
// selected server once one is known.
func NewDocumentBuilderWithLimit(maxSize int32) *Builder {
	b := &Builder{maxSize: maxSize}
	b.buf = make([]byte, 0, 256)
	b.openFrame()
	return b
}

// openFrame reserves a 4-byte length placeholder and pushes its offset.
func (b *Builder) openFrame() {
	b.stack = append(b.stack, int32(len(b.buf)))
	b.buf = appendi32(b.buf, 0)
}

// closeFrame pops the most recently opened frame, appends the
// terminating NUL, and patches the length prefix in place.
func (b *Builder) closeFrame() {
	b.buf = append(b.buf, 0x00)
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	length := int32(len(b.buf)) - top
	putInt32At(b.buf, top, length)
}

func putInt32At(buf []byte, offset, v int32) {
	buf[offset] = byte(v)
	buf[offset+1] = byte(v >> 8)
	buf[offset+2] = byte(v >> 16)
	buf[offset+3] = byte(v >> 24)
}

// depth reports how many documents/arrays are currently open, including
// the implicit top-level document. depth()==1 means "at top level".
func (b *Builder) depth() int {
	return len(b.stack)
}

// checkKey records validation bits for key and, if at the top level,
// rejects dotted/dollar-prefixed keys into the bit set rather than
// failing the append.
func (b *Builder) checkKey(key string) {
	if !utf8.ValidString(key) {
		b.bits |= BitNotUTF8
	}
	if b.depth() != 1 {
		return
	}
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			b.bits |= BitDotInKey
			break
		}
	}
	if len(key) > 0 && key[0] == '$' {
		b.bits |= BitDollarInitKey
	}
}

func (b *Builder) appendKey(t Type, key string) {
	b.checkKey(key)
	b.buf = append(b.buf, byte(t))
	b.buf = append(b.buf, key...)
	b.buf = append(b.buf, 0x00)
}

// checkSize poisons the Builder once the buffer has grown past maxSize,
// matching the source's "grow to a hard cap, then fail" policy.
func (b *Builder) checkSize() error {
	if b.poisonErr != nil {
		return b.poisonErr
	}
	if b.maxSize > 0 && int32(len(b.buf)) > b.maxSize {
		b.poisonErr = TooLargeError{Limit: b.maxSize}
		return b.poisonErr
	}
	return nil
}

// poisoned reports whether a previous append already failed; if so it
// returns that same error so every subsequent call is a no-op.
func (b *Builder) poisoned() error {
	return b.poisonErr
}

func (b *Builder) AppendDoubleElement(key string, v float64) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeDouble, key)
	b.buf = appendi64(b.buf, int64(math.Float64bits(v)))
	return b.checkSize()
}

func (b *Builder) AppendStringElement(key, v string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	if !utf8.ValidString(v) {
		b.bits |= BitNotUTF8
	}
	b.appendKey(TypeString, key)
	b.buf = appendi32(b.buf, int32(len(v)+1))
	b.buf = append(b.buf, v...)
	b.buf = append(b.buf, 0x00)
	return b.checkSize()
}

// StartDocument opens a nested document under key. The caller must
// balance it with FinishDocument.
func (b *Builder) StartDocument(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeEmbeddedDocument, key)
	b.openFrame()
	return b.checkSize()
}

// FinishDocument closes the most recently opened document frame.
func (b *Builder) FinishDocument() error {
	if err := b.poisoned(); err != nil {
		return err
	}
	if b.depth() <= 1 {
		return errNoOpenFrame
	}
	b.closeFrame()
	return b.checkSize()
}

// StartArray opens a nested array under key. The caller must balance it
// with FinishArray, and append elements using the decimal string of
// each index in increasing order.
func (b *Builder) StartArray(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeArray, key)
	b.openFrame()
	return b.checkSize()
}

// FinishArray closes the most recently opened array frame.
func (b *Builder) FinishArray() error {
	return b.FinishDocument()
}

func (b *Builder) AppendDocumentElement(key string, doc Document) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeEmbeddedDocument, key)
	b.buf = append(b.buf, doc...)
	return b.checkSize()
}

func (b *Builder) AppendArrayElement(key string, arr Array) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeArray, key)
	b.buf = append(b.buf, arr...)
	return b.checkSize()
}

func (b *Builder) AppendBinaryElement(key string, subtype byte, data []byte) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeBinary, key)
	b.buf = appendi32(b.buf, int32(len(data)))
	b.buf = append(b.buf, subtype)
	b.buf = append(b.buf, data...)
	return b.checkSize()
}

func (b *Builder) AppendObjectIDElement(key string, oid primitive.ObjectID) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeObjectID, key)
	b.buf = append(b.buf, oid[:]...)
	return b.checkSize()
}

func (b *Builder) AppendBooleanElement(key string, v bool) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeBoolean, key)
	if v {
		b.buf = append(b.buf, 0x01)
	} else {
		b.buf = append(b.buf, 0x00)
	}
	return b.checkSize()
}

func (b *Builder) AppendDateTimeElement(key string, ms int64) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeDateTime, key)
	b.buf = appendi64(b.buf, ms)
	return b.checkSize()
}

func (b *Builder) AppendNullElement(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeNull, key)
	return b.checkSize()
}

func (b *Builder) AppendUndefinedElement(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeUndefined, key)
	return b.checkSize()
}

func (b *Builder) AppendRegexElement(key, pattern, options string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeRegex, key)
	b.buf = append(b.buf, pattern...)
	b.buf = append(b.buf, 0x00)
	b.buf = append(b.buf, options...)
	b.buf = append(b.buf, 0x00)
	return b.checkSize()
}

func (b *Builder) AppendJavaScriptElement(key, code string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	if !utf8.ValidString(code) {
		b.bits |= BitNotUTF8
	}
	b.appendKey(TypeJavaScript, key)
	b.buf = appendi32(b.buf, int32(len(code)+1))
	b.buf = append(b.buf, code...)
	b.buf = append(b.buf, 0x00)
	return b.checkSize()
}

// AppendCodeWithScopeElement appends pre-built scope document bytes
// alongside code. The scope must already be a finished Document.
func (b *Builder) AppendCodeWithScopeElement(key, code string, scope Document) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeCodeWithScope, key)
	inner := appendi32(nil, int32(len(code)+1))
	inner = append(inner, code...)
	inner = append(inner, 0x00)
	inner = append(inner, scope...)
	b.buf = appendi32(b.buf, int32(len(inner)+4))
	b.buf = append(b.buf, inner...)
	return b.checkSize()
}

func (b *Builder) AppendSymbolElement(key, v string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeSymbol, key)
	b.buf = appendi32(b.buf, int32(len(v)+1))
	b.buf = append(b.buf, v...)
	b.buf = append(b.buf, 0x00)
	return b.checkSize()
}

func (b *Builder) AppendInt32Element(key string, v int32) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeInt32, key)
	b.buf = appendi32(b.buf, v)
	return b.checkSize()
}

func (b *Builder) AppendTimestampElement(key string, t, i uint32) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeTimestamp, key)
	b.buf = appendu32(b.buf, i)
	b.buf = appendu32(b.buf, t)
	return b.checkSize()
}

func (b *Builder) AppendInt64Element(key string, v int64) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeInt64, key)
	b.buf = appendi64(b.buf, v)
	return b.checkSize()
}

func (b *Builder) AppendMinKeyElement(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeMinKey, key)
	return b.checkSize()
}

func (b *Builder) AppendMaxKeyElement(key string) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	b.appendKey(TypeMaxKey, key)
	return b.checkSize()
}

// AppendValueElement copies an already-decoded Value under key,
// switching on its wire type. Used when forwarding elements from one
// document into another, e.g. auth's $db injection or operation.go's
// command-option merging.
func (b *Builder) AppendValueElement(key string, v Value) error {
	if err := b.poisoned(); err != nil {
		return err
	}
	switch v.Type {
	case TypeDouble:
		f, _ := v.DoubleOK()
		return b.AppendDoubleElement(key, f)
	case TypeString:
		s, _ := v.StringValueOK()
		return b.AppendStringElement(key, s)
	case TypeEmbeddedDocument:
		return b.AppendDocumentElement(key, v.Document())
	case TypeArray:
		return b.AppendArrayElement(key, v.Array())
	case TypeBinary:
		st, data, _ := v.BinaryOK()
		return b.AppendBinaryElement(key, st, data)
	case TypeObjectID:
		oid, _ := v.ObjectIDOK()
		return b.AppendObjectIDElement(key, oid)
	case TypeBoolean:
		bo, _ := v.BooleanOK()
		return b.AppendBooleanElement(key, bo)
	case TypeDateTime:
		dt, _ := v.DateTimeOK()
		return b.AppendDateTimeElement(key, dt)
	case TypeNull:
		return b.AppendNullElement(key)
	case TypeUndefined:
		return b.AppendUndefinedElement(key)
	case TypeRegex:
		p, o, _ := v.RegexOK()
		return b.AppendRegexElement(key, p, o)
	case TypeInt32:
		n, _ := v.Int32OK()
		return b.AppendInt32Element(key, n)
	case TypeTimestamp:
		t, i, _ := v.TimestampOK()
		return b.AppendTimestampElement(key, t, i)
	case TypeInt64:
		n, _ := v.Int64OK()
		return b.AppendInt64Element(key, n)
	case TypeMinKey:
		return b.AppendMinKeyElement(key)
	case TypeMaxKey:
		return b.AppendMaxKeyElement(key)
	default:
		return TypeMismatchError{Wanted: TypeEmbeddedDocument, Got: v.Type}
	}
}

// Finish terminates every still-open frame from the innermost outward,
// patches the top-level length, and returns the resulting Document
// along with the accumulated validation bits. A non-top-level document
// left open by an unbalanced Start*/Finish* pair is closed automatically
// here; callers relying on balanced calls should treat that as a bug.
func (b *Builder) Finish() (Document, ValidationBit, error) {
	if err := b.poisoned(); err != nil {
		return nil, b.bits, err
	}
	for b.depth() > 0 {
		b.closeFrame()
	}
	if err := b.checkSize(); err != nil {
		return nil, b.bits, err
	}
	return Document(b.buf), b.bits, nil
}

var errNoOpenFrame = docBuilderError("bsoncore: no open document/array frame to finish")

type docBuilderError string

func (e docBuilderError) Error() string { return string(e) }
