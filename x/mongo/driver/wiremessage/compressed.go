// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// Compressed is the body of an OP_COMPRESSED message:
// original_opcode:i32, uncompressed_size:i32, compressor_id:u8,
// payload:bytes. The framer treats the payload opaquely;
// it is inflated by an external Compressor keyed on CompressorID before
// the inner frame is re-decoded. Exactly one level of nesting is
// permitted.
type Compressed struct {
	MsgHeader         Header
	OriginalOpCode    OpCode
	UncompressedSize  int32
	CompressorID      CompressorID
	CompressedMessage []byte
}

func (c Compressed) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	c.MsgHeader.OpCode = OpCompressed
	dst = c.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, int32(c.OriginalOpCode))
	dst = appendi32(dst, c.UncompressedSize)
	dst = appendu8(dst, uint8(c.CompressorID))
	dst = append(dst, c.CompressedMessage...)
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (c *Compressed) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	c.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 9 {
		return ProtocolError{Message: "truncated OP_COMPRESSED header fields"}
	}
	c.OriginalOpCode = OpCode(readi32(rest[0:4]))
	c.UncompressedSize = readi32(rest[4:8])
	c.CompressorID = CompressorID(rest[8])
	c.CompressedMessage = rest[9:]
	return nil
}
