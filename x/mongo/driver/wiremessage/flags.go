// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// QueryFlag is the OP_QUERY flags bitfield.
type QueryFlag int32

const (
	QueryTailableCursor QueryFlag = 1 << 1
	QuerySlaveOK        QueryFlag = 1 << 2
	QueryOplogReplay    QueryFlag = 1 << 3
	QueryNoCursorTimeout QueryFlag = 1 << 4
	QueryAwaitData      QueryFlag = 1 << 5
	QueryExhaust        QueryFlag = 1 << 6
	QueryPartial        QueryFlag = 1 << 7
)

// ReplyFlag is the OP_REPLY response_flags bitfield.
type ReplyFlag int32

const (
	ReplyCursorNotFound   ReplyFlag = 1 << 0
	ReplyQueryFailure     ReplyFlag = 1 << 1
	ReplyShardConfigStale ReplyFlag = 1 << 2
	ReplyAwaitCapable     ReplyFlag = 1 << 3
)

// UpdateFlag is the OP_UPDATE flags bitfield.
type UpdateFlag int32

const (
	UpdateUpsert UpdateFlag = 1 << 0
	UpdateMulti  UpdateFlag = 1 << 1
)

// DeleteFlag is the OP_DELETE flags bitfield.
type DeleteFlag int32

const (
	DeleteSingleRemove DeleteFlag = 1 << 0
)

// InsertFlag is the OP_INSERT flags bitfield.
type InsertFlag int32

const (
	InsertContinueOnError InsertFlag = 1 << 0
)

// MsgFlag is the OP_MSG top-level flags bitfield.
type MsgFlag uint32

const (
	MsgChecksumPresent MsgFlag = 1 << 0
	MsgMoreToCome      MsgFlag = 1 << 1
	MsgExhaustAllowed  MsgFlag = 1 << 16
)

// MsgSectionKind identifies an OP_MSG section's payload type.
type MsgSectionKind byte

const (
	MsgSectionBody     MsgSectionKind = 0
	MsgSectionSequence MsgSectionKind = 1
)
