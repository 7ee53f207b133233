// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Query is the body of an OP_QUERY message:
// flags:i32, ns:cstring, skip:i32, n_return:i32, query:bson, [fields:bson].
type Query struct {
	MsgHeader          Header
	Flags              QueryFlag
	FullCollectionName string
	NumberToSkip       int32
	NumberToReturn     int32
	Query              []byte // bsoncore.Document
	ReturnFieldsSelector []byte // bsoncore.Document, optional
}

func (q Query) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	q.MsgHeader.OpCode = OpQuery
	dst = q.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, int32(q.Flags))
	dst = appendCString(dst, q.FullCollectionName)
	dst = appendi32(dst, q.NumberToSkip)
	dst = appendi32(dst, q.NumberToReturn)
	dst = append(dst, q.Query...)
	if len(q.ReturnFieldsSelector) > 0 {
		dst = append(dst, q.ReturnFieldsSelector...)
	}
	SetMessageLength(dst[start:], int32(len(dst)-start))
	if err := validateLength(int32(len(dst) - start)); err != nil {
		return dst, err
	}
	return dst, nil
}

func (q *Query) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	q.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_QUERY flags"}
	}
	q.Flags = QueryFlag(readi32(rest[:4]))
	rest = rest[4:]

	ns, rem, ok := readCString(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_QUERY namespace"}
	}
	q.FullCollectionName = ns
	rest = rem

	if len(rest) < 8 {
		return ProtocolError{Message: "truncated OP_QUERY skip/return"}
	}
	q.NumberToSkip = readi32(rest[:4])
	q.NumberToReturn = readi32(rest[4:8])
	rest = rest[8:]

	doc, rem, ok := readDocument(rest)
	if !ok {
		return ProtocolError{Message: "truncated OP_QUERY query document"}
	}
	q.Query = doc
	rest = rem

	if len(rest) > 0 {
		doc, _, ok := readDocument(rest)
		if !ok {
			return ProtocolError{Message: "truncated OP_QUERY fields document"}
		}
		q.ReturnFieldsSelector = doc
	}
	return nil
}
