// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver ties the lower layers together into the core: a
// generic command Operation (select a server, frame the command, read
// the reply, canonicalize failures) and the error/result taxonomy
// every fallible call returns through. Grounded on
// x/mongo/driverx/driver.go's Deployment interface and its
// QueryFailureError/WriteCommandError handling.
package driver

import (
	"fmt"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
)

// Domain names one of the nine failure categories.
type Domain string

const (
	NetworkDomain        Domain = "network"
	ProtocolDomain       Domain = "protocol"
	BsonDomain           Domain = "bson"
	CommandDomain        Domain = "command"
	WriteDomain          Domain = "write"
	WriteConcernDomain   Domain = "write_concern"
	CursorDomain         Domain = "cursor"
	ServerSelectionDomain Domain = "server_selection"
	ClientDomain         Domain = "client"
)

// Code is a driver-defined failure code drawn from a small fixed set.
// Server commands instead carry their own numeric code, preserved
// verbatim in Error.ServerCode.
type Code string

const (
	CodeBsonTooLarge          Code = "BsonTooLarge"
	CodeBsonTypeMismatch      Code = "BsonTypeMismatch"
	CodeNotUTF8               Code = "NotUtf8"
	CodeProtocolInvalid       Code = "ProtocolInvalid"
	CodeNoSuitableServer      Code = "NoSuitableServer"
	CodeServerSelectionTimeout Code = "ServerSelectionTimeout"
	CodeDuplicateKey          Code = "DuplicateKey"
	CodeCommandNotFound       Code = "CommandNotFound"
	CodeInvalidArg            Code = "InvalidArg"
)

// legacyDuplicateKeyCodes canonicalizes the pre-2.6 duplicate-key codes
// a write command reply may still report.
var legacyDuplicateKeyCodes = map[int32]bool{11000: true, 11001: true, 12582: true, 16460: true}

// commandNotFoundCode is the server's numeric code for an unrecognized
// command name.
const commandNotFoundCode int32 = 59

// legacyCommandNotFoundCode is mongoc's pre-3.0 equivalent, kept for the
// same reason the legacy duplicate-key codes are.
const legacyCommandNotFoundCode int32 = 13390

// CanonicalizeCode maps a server's numeric error code onto a
// driver-defined Code when one applies, returning ok=false when the
// numeric code should be preserved as-is.
func CanonicalizeCode(serverCode int32) (Code, bool) {
	if legacyDuplicateKeyCodes[serverCode] {
		return CodeDuplicateKey, true
	}
	if serverCode == commandNotFoundCode || serverCode == legacyCommandNotFoundCode {
		return CodeCommandNotFound, true
	}
	return "", false
}

// Error is the result of every fallible core operation: either success
// with a typed value, or this — {domain, code, message, optional server
// reply}.
type Error struct {
	Domain     Domain
	Code       Code
	ServerCode int32
	Message    string
	Raw        bsoncore.Document
	Wrapped    error
}

func (e *Error) Error() string {
	code := string(e.Code)
	if code == "" && e.ServerCode != 0 {
		code = fmt.Sprintf("%d", e.ServerCode)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Domain, code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Domain, code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Retryable reports whether a Network-domain error is eligible for a
// single server-selection retry on writes, versus a ProtocolInvalid
// which must never be retried.
func (e *Error) Retryable() bool {
	return e.Domain == NetworkDomain
}

// InvalidArgument builds a Client-domain error for a malformed call
// detected before any I/O.
func InvalidArgument(message string) error {
	return &Error{Domain: ClientDomain, Code: CodeInvalidArg, Message: message}
}

// NewCommandError builds the Command-domain error for an ok:0 reply,
// preserving the server's code/errmsg verbatim alongside the raw
// document.
func NewCommandError(raw bsoncore.Document, serverCode int32, errmsg string) *Error {
	code, _ := CanonicalizeCode(serverCode)
	return &Error{Domain: CommandDomain, Code: code, ServerCode: serverCode, Message: errmsg, Raw: raw}
}
