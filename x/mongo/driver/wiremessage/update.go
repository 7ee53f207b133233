// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Update is the body of an OP_UPDATE message:
// 0:i32, ns:cstring, flags:i32, selector:bson, update:bson.
type Update struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              UpdateFlag
	Selector           []byte
	Update             []byte
}

func (u Update) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	u.MsgHeader.OpCode = OpUpdate
	dst = u.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, 0)
	dst = appendCString(dst, u.FullCollectionName)
	dst = appendi32(dst, int32(u.Flags))
	dst = append(dst, u.Selector...)
	dst = append(dst, u.Update...)
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (u *Update) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	u.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_UPDATE reserved field"}
	}
	rest = rest[4:]

	ns, rem, ok := readCString(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_UPDATE namespace"}
	}
	u.FullCollectionName = ns
	rest = rem

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_UPDATE flags"}
	}
	u.Flags = UpdateFlag(readi32(rest[:4]))
	rest = rest[4:]

	selector, rem, ok := readDocument(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_UPDATE selector"}
	}
	u.Selector = selector
	rest = rem

	update, _, ok := readDocument(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_UPDATE update document"}
	}
	u.Update = update
	return nil
}
