// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Every opcode body's AppendWireMessage is declared with a value
// receiver but UnmarshalWireMessage with a pointer receiver, so only a
// *T satisfies WireMessage — a bare T does not have UnmarshalWireMessage
// in its method set. These assignments are a compile-time check of that
// contract; if any of them stopped compiling, some construction site
// would be back to writing a value where a WireMessage is required.
var (
	_ WireMessage = (*Msg)(nil)
	_ WireMessage = (*Insert)(nil)
	_ WireMessage = (*Update)(nil)
	_ WireMessage = (*Delete)(nil)
	_ WireMessage = (*Query)(nil)
	_ WireMessage = (*Reply)(nil)
	_ WireMessage = (*KillCursors)(nil)
	_ WireMessage = (*GetMore)(nil)
)

func TestMsgRoundTrip(t *testing.T) {
	t.Parallel()

	body := []byte{0x05, 0x00, 0x00, 0x00, 0x00} // empty BSON document
	want := &Msg{
		MsgHeader: Header{RequestID: 7},
		Sections: []MsgSection{
			{Kind: MsgSectionBody, Document: body},
		},
	}

	buf, err := want.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	hdr, err := ReadHeader(buf, 0)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.OpCode != OpMsg {
		t.Fatalf("OpCode = %v, want OpMsg", hdr.OpCode)
	}
	if hdr.RequestID != 7 {
		t.Fatalf("RequestID = %d, want 7", hdr.RequestID)
	}

	got := new(Msg)
	if err := got.UnmarshalWireMessage(buf); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if diff := cmp.Diff(want.Sections, got.Sections); diff != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", diff)
	}
	if got.MsgHeader.RequestID != want.MsgHeader.RequestID {
		t.Errorf("RequestID = %d, want %d", got.MsgHeader.RequestID, want.MsgHeader.RequestID)
	}
}

func TestMsgExhaustFlagRoundTrip(t *testing.T) {
	t.Parallel()

	want := &Msg{
		MsgHeader: Header{RequestID: 1},
		FlagBits:  MsgExhaustAllowed | MsgMoreToCome,
		Sections: []MsgSection{
			{Kind: MsgSectionBody, Document: []byte{0x05, 0x00, 0x00, 0x00, 0x00}},
		},
	}

	buf, err := want.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	got := new(Msg)
	if err := got.UnmarshalWireMessage(buf); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if got.FlagBits&MsgExhaustAllowed == 0 {
		t.Errorf("MsgExhaustAllowed not preserved: %v", got.FlagBits)
	}
	if got.FlagBits&MsgMoreToCome == 0 {
		t.Errorf("MsgMoreToCome not preserved: %v", got.FlagBits)
	}
}

func TestInsertRoundTrip(t *testing.T) {
	t.Parallel()

	doc := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	want := &Insert{
		MsgHeader:          Header{RequestID: 3},
		FullCollectionName: "db.coll",
		Documents:          [][]byte{doc},
	}

	buf, err := want.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	got := new(Insert)
	if err := got.UnmarshalWireMessage(buf); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if got.FullCollectionName != want.FullCollectionName {
		t.Errorf("FullCollectionName = %q, want %q", got.FullCollectionName, want.FullCollectionName)
	}
	if diff := cmp.Diff(want.Documents, got.Documents); diff != "" {
		t.Errorf("Documents mismatch (-want +got):\n%s", diff)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	t.Parallel()

	doc := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	want := &Reply{
		MsgHeader:      Header{RequestID: 9, ResponseTo: 3},
		CursorID:       123,
		NumberReturned: 1,
		Documents:      [][]byte{doc},
	}

	buf, err := want.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	got := new(Reply)
	if err := got.UnmarshalWireMessage(buf); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if got.CursorID != want.CursorID {
		t.Errorf("CursorID = %d, want %d", got.CursorID, want.CursorID)
	}
	if got.MsgHeader.ResponseTo != want.MsgHeader.ResponseTo {
		t.Errorf("ResponseTo = %d, want %d", got.MsgHeader.ResponseTo, want.MsgHeader.ResponseTo)
	}
	if diff := cmp.Diff(want.Documents, got.Documents); diff != "" {
		t.Errorf("Documents mismatch (-want +got):\n%s", diff)
	}
}

func TestNextRequestIDMonotonic(t *testing.T) {
	t.Parallel()

	a := NextRequestID()
	b := NextRequestID()
	if b <= a {
		t.Fatalf("NextRequestID not monotonic: %d then %d", a, b)
	}
}
