// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// CommandError wraps a server-reported command failure (ok:0), the
// application-facing equivalent of driver.Error.
type CommandError struct {
	Code    int32
	Message string
	Wrapped error
}

func (e CommandError) Error() string {
	return fmt.Sprintf("command failed: %s (code %d)", e.Message, e.Code)
}

func (e CommandError) Unwrap() error { return e.Wrapped }

// WriteError is one per-op failure from a bulk write reply.
type WriteError struct {
	Index   int
	Code    int32
	Message string
}

func (e WriteError) Error() string {
	return fmt.Sprintf("write error at index %d: %s (code %d)", e.Index, e.Message, e.Code)
}

// WriteConcernError reports that a write applied but its durability
// guarantee was not met.
type WriteConcernError struct {
	Code    int32
	Message string
}

func (e WriteConcernError) Error() string {
	return fmt.Sprintf("write concern error: %s (code %d)", e.Message, e.Code)
}

// WriteException aggregates the per-op and write-concern failures from
// one bulk write call, mirroring driver.BulkResult's error fields.
type WriteException struct {
	WriteErrors       []WriteError
	WriteConcernError *WriteConcernError
}

func (e *WriteException) Error() string {
	if len(e.WriteErrors) > 0 {
		return e.WriteErrors[0].Error()
	}
	if e.WriteConcernError != nil {
		return e.WriteConcernError.Error()
	}
	return "write exception"
}

// toWriteException converts a driver.BulkResult's failure fields into a
// *WriteException, or nil if the result carries no failures.
func toWriteException(res *driver.BulkResult) *WriteException {
	if res == nil || (len(res.WriteErrors) == 0 && len(res.WriteConcernErrors) == 0) {
		return nil
	}
	exc := &WriteException{}
	for _, we := range res.WriteErrors {
		exc.WriteErrors = append(exc.WriteErrors, WriteError{Index: we.Index, Code: we.Code, Message: we.Message})
	}
	if len(res.WriteConcernErrors) > 0 {
		wce := res.WriteConcernErrors[0]
		exc.WriteConcernError = &WriteConcernError{Code: wce.Code, Message: wce.Message}
	}
	return exc
}

func fromDriverError(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*driver.Error); ok && de.Domain == driver.CommandDomain {
		return CommandError{Code: de.ServerCode, Message: de.Message, Wrapped: de.Wrapped}
	}
	if wce, ok := err.(*writeconcern.Error); ok {
		return WriteConcernError{Code: wce.Code, Message: wce.Message}
	}
	return err
}
