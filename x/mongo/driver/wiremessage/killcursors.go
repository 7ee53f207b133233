// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// KillCursors is the body of an OP_KILL_CURSORS message:
// 0:i32, n_cursors:i32, cursor_ids:[i64 x n].
type KillCursors struct {
	MsgHeader  Header
	CursorIDs  []int64
}

func (k KillCursors) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	k.MsgHeader.OpCode = OpKillCursors
	dst = k.MsgHeader.AppendHeader(dst)
	dst = appendi32(dst, 0)
	dst = appendi32(dst, int32(len(k.CursorIDs)))
	for _, id := range k.CursorIDs {
		dst = appendi64(dst, id)
	}
	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func (k *KillCursors) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	k.MsgHeader = hdr
	rest := src[HeaderLen:]

	if len(rest) < 8 {
		return ProtocolError{Message: "truncated OP_KILL_CURSORS header fields"}
	}
	n := readi32(rest[4:8])
	rest = rest[8:]

	if int(n)*8 > len(rest) || n < 0 {
		return ProtocolError{Message: "truncated OP_KILL_CURSORS cursor id list"}
	}
	k.CursorIDs = k.CursorIDs[:0]
	for i := int32(0); i < n; i++ {
		k.CursorIDs = append(k.CursorIDs, readi64(rest[:8]))
		rest = rest[8:]
	}
	return nil
}
