// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Reply is the body of an OP_REPLY message:
// flags:i32, cursor_id:i64, start_from:i32, n_returned:i32, docs:[bson...].
type Reply struct {
	MsgHeader      Header
	ResponseFlags  ReplyFlag
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      [][]byte // bsoncore.Document slices, views into the source buffer
}

func (r Reply) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	r.MsgHeader.OpCode = OpReply
	dst = r.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, int32(r.ResponseFlags))
	dst = appendi64(dst, r.CursorID)
	dst = appendi32(dst, r.StartingFrom)
	dst = appendi32(dst, r.NumberReturned)
	for _, d := range r.Documents {
		dst = append(dst, d...)
	}
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (r *Reply) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	r.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 20 {
		return ProtocolError{Message: "truncated OP_REPLY fixed fields"}
	}
	r.ResponseFlags = ReplyFlag(readi32(rest[0:4]))
	r.CursorID = readi64(rest[4:12])
	r.StartingFrom = readi32(rest[12:16])
	r.NumberReturned = readi32(rest[16:20])
	rest = rest[20:]

	r.Documents = r.Documents[:0]
	for len(rest) > 0 {
		doc, rem, ok := readDocument(rest)
		if !ok {
			return ProtocolError{Message: "truncated OP_REPLY document"}
		}
		r.Documents = append(r.Documents, doc)
		rest = rem
	}
	return nil
}
