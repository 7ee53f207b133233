// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// GetMore is the body of an OP_GET_MORE message:
// 0:i32, ns:cstring, n_return:i32, cursor_id:i64.
type GetMore struct {
	MsgHeader          Header
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

func (g GetMore) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	g.MsgHeader.OpCode = OpGetMore
	dst = g.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, 0)
	dst = appendCString(dst, g.FullCollectionName)
	dst = appendi32(dst, g.NumberToReturn)
	dst = appendi64(dst, g.CursorID)
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (g *GetMore) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	g.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_GET_MORE reserved field"}
	}
	rest = rest[4:]

	ns, rem, ok := readCString(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_GET_MORE namespace"}
	}
	g.FullCollectionName = ns
	rest = rem

	if len(rest) < 12 {
		return ProtocolError{Message: "truncated OP_GET_MORE fixed fields"}
	}
	g.NumberToReturn = readi32(rest[:4])
	g.CursorID = readi64(rest[4:12])
	return nil
}
