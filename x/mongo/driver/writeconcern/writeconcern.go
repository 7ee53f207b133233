// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package writeconcern models the durability acknowledgement policy
// {w, j, wtimeout, fsync}.
package writeconcern

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
)

// WriteConcern is the durability policy attached to a write operation.
type WriteConcern struct {
	// W is either an int (number of nodes) or a string (a tag set name,
	// most commonly "majority").
	W        interface{}
	Journal  *bool
	WTimeout time.Duration
	FSync    *bool
}

// W1 is the common acknowledged-by-primary write concern.
var W1 = &WriteConcern{W: 1}

// WMajority requires acknowledgement from a majority of voting members.
var WMajority = &WriteConcern{W: "majority"}

// Unacknowledged is the fire-and-forget write concern: the coordinator
// sends but never reads a reply.
var Unacknowledged = &WriteConcern{W: 0}

// AckWrite reports whether wc requires the coordinator to wait for and
// read a server reply. A nil WriteConcern defaults to acknowledged,
// matching the server's own default.
func AckWrite(wc *WriteConcern) bool {
	if wc == nil {
		return true
	}
	if n, ok := wc.W.(int); ok {
		return n != 0
	}
	return true
}

// AcceptsBypassValidation reports whether wc may be combined with
// bypassDocumentValidation/collation options; w=0 forbids both.
func (wc *WriteConcern) AcceptsBypassValidation() bool {
	return AckWrite(wc)
}

// AppendElement encodes wc as the "writeConcern" subdocument of a
// command, via the shared bsoncore.Builder.
func (wc *WriteConcern) AppendElement(b *bsoncore.Builder, key string) error {
	if wc == nil {
		return nil
	}
	if err := b.StartDocument(key); err != nil {
		return err
	}
	switch w := wc.W.(type) {
	case int:
		if err := b.AppendInt32Element("w", int32(w)); err != nil {
			return err
		}
	case string:
		if err := b.AppendStringElement("w", w); err != nil {
			return err
		}
	case nil:
	default:
		return fmt.Errorf("writeconcern: unsupported w value of type %T", w)
	}
	if wc.Journal != nil {
		if err := b.AppendBooleanElement("j", *wc.Journal); err != nil {
			return err
		}
	}
	if wc.WTimeout > 0 {
		if err := b.AppendInt64Element("wtimeout", wc.WTimeout.Milliseconds()); err != nil {
			return err
		}
	}
	if wc.FSync != nil {
		if err := b.AppendBooleanElement("fsync", *wc.FSync); err != nil {
			return err
		}
	}
	return b.FinishDocument()
}

// Error represents a durability failure reported alongside an otherwise
// successful write: "your data was applied but not durable".
type Error struct {
	Code    int32
	Message string
	Details bsoncore.Document
}

func (e *Error) Error() string {
	return fmt.Sprintf("write concern error: %s (code %d)", e.Message, e.Code)
}

// Retryable reports whether the write concern error is itself eligible
// for a single retry attempt.
func (e *Error) Retryable() bool {
	switch e.Code {
	case 64, 50, 91, 189, 262, 10107, 13435, 13436:
		return true
	default:
		return false
	}
}
