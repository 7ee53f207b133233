// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wiremessage implements the wire framer: encode/decode of the
// nine MongoDB wire protocol opcodes over little-endian frames, using
// scatter/gather style []byte slices the way core/connection (which
// imports "core/wiremessage") and mongo/private/roots/command (which
// imports its own sibling wiremessage package) both do.
package wiremessage

import "fmt"

// OpCode is the 4-byte little-endian opcode identifying a wire message's
// body layout.
type OpCode int32

// Wire protocol opcodes. Numeric values are fixed by the protocol.
const (
	OpReply      OpCode = 1
	OpUpdate     OpCode = 2001
	OpInsert     OpCode = 2002
	OpQuery      OpCode = 2004
	OpGetMore    OpCode = 2005
	OpDelete     OpCode = 2006
	OpKillCursors OpCode = 2007
	OpMsg        OpCode = 1000
	OpCompressed OpCode = 2012
)

func (oc OpCode) String() string {
	switch oc {
	case OpReply:
		return "OP_REPLY"
	case OpUpdate:
		return "OP_UPDATE"
	case OpInsert:
		return "OP_INSERT"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	case OpMsg:
		return "OP_MSG"
	case OpCompressed:
		return "OP_COMPRESSED"
	default:
		return fmt.Sprintf("OpCode(%d)", int32(oc))
	}
}

// CompressorID identifies which compression algorithm an OP_COMPRESSED
// payload was encoded with. The framer only interprets the ID to route
// to an external Compressor; it never implements an algorithm itself.
type CompressorID uint8

const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorZstd   CompressorID = 3
)
