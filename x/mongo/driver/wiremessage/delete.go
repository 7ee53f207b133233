// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Delete is the body of an OP_DELETE message:
// 0:i32, ns:cstring, flags:i32, selector:bson.
type Delete struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              DeleteFlag
	Selector           []byte
}

func (d Delete) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	d.MsgHeader.OpCode = OpDelete
	dst = d.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, 0)
	dst = appendCString(dst, d.FullCollectionName)
	dst = appendi32(dst, int32(d.Flags))
	dst = append(dst, d.Selector...)
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (d *Delete) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	d.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_DELETE reserved field"}
	}
	rest = rest[4:]

	ns, rem, ok := readCString(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_DELETE namespace"}
	}
	d.FullCollectionName = ns
	rest = rem

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_DELETE flags"}
	}
	d.Flags = DeleteFlag(readi32(rest[:4]))
	rest = rest[4:]

	selector, _, ok := readDocument(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_DELETE selector"}
	}
	d.Selector = selector
	return nil
}
