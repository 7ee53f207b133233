// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import "sync/atomic"

// HeaderLen is the fixed byte length of a wire message header.
const HeaderLen = 16

// Header is the 16-byte little-endian frame header shared by every
// opcode: {msg_len, request_id, response_to, opcode}.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// AppendHeader appends h's 16 bytes to dst. Callers that don't yet know
// the final MessageLength (the common case while gathering a body) pass
// a zero value here and patch it afterward with SetMessageLength.
func (h Header) AppendHeader(dst []byte) []byte {
	dst = appendi32(dst, h.MessageLength)
	dst = appendi32(dst, h.RequestID)
	dst = appendi32(dst, h.ResponseTo)
	dst = appendi32(dst, int32(h.OpCode))
	return dst
}

// SetMessageLength patches the length field of an already-appended
// header in place, the Go analogue of the source's offset-patching of
// nested lengths.
func SetMessageLength(buf []byte, length int32) {
	buf[0] = byte(length)
	buf[1] = byte(length >> 8)
	buf[2] = byte(length >> 16)
	buf[3] = byte(length >> 24)
}

// ReadHeader reads a Header starting at pos in src.
func ReadHeader(src []byte, pos int32) (Header, error) {
	if int(pos)+HeaderLen > len(src) {
		return Header{}, ProtocolError{Message: "short header"}
	}
	b := src[pos:]
	return Header{
		MessageLength: readi32(b[0:4]),
		RequestID:     readi32(b[4:8]),
		ResponseTo:    readi32(b[8:12]),
		OpCode:        OpCode(readi32(b[12:16])),
	}, nil
}

// requestIDCounter is the process-wide sequence every outgoing request
// ID is drawn from. Connection keeps no counter of its own, so the IDs
// sent on one connection increase but are not consecutive.
var requestIDCounter int32

// NextRequestID returns the next value from the process-wide
// counter. It replaces the source's rand()-seeded IDs with a strict
// monotonic counter.
func NextRequestID() int32 {
	return atomic.AddInt32(&requestIDCounter, 1)
}
