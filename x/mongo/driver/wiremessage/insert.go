// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Insert is the body of an OP_INSERT message:
// flags:i32, ns:cstring, docs:[bson...]. It is retained
// only for the legacy (wire version 0, unacknowledged) write path.
type Insert struct {
	MsgHeader          Header
	Flags              InsertFlag
	FullCollectionName string
	Documents          [][]byte
}

func (i Insert) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	i.MsgHeader.OpCode = OpInsert
	dst = i.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, int32(i.Flags))
	dst = appendCString(dst, i.FullCollectionName)
	for _, d := range i.Documents {
		dst = append(dst, d...)
	}
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (i *Insert) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	i.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_INSERT flags"}
	}
	i.Flags = InsertFlag(readi32(rest[:4]))
	rest = rest[4:]

	ns, rem, ok := readCString(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_INSERT namespace"}
	}
	i.FullCollectionName = ns
	rest = rem

	i.Documents = i.Documents[:0]
	for len(rest) > 0 {
		doc, rem, ok := readDocument(rest)
		if !ok {
			return ProtocolError{Message: "truncated OP_INSERT document"}
		}
		i.Documents = append(i.Documents, doc)
		rest = rem
	}
	return nil
}
