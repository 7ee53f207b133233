// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

// CommandStartedMessage is emitted immediately before a command is
// written to the wire.
type CommandStartedMessage struct {
	CommandName string
	DatabaseName string
	RequestID   int32
	Command     string
	ServerHost  string
}

func (m CommandStartedMessage) Component() Component { return ComponentCommand }
func (m CommandStartedMessage) Message() string       { return "Command started" }
func (m CommandStartedMessage) Serialize() []interface{} {
	return []interface{}{
		"commandName", m.CommandName,
		"databaseName", m.DatabaseName,
		"requestId", m.RequestID,
		"command", m.Command,
		"serverHost", m.ServerHost,
	}
}

// CommandSucceededMessage is emitted after a command's reply is decoded
// and reports ok:1.
type CommandSucceededMessage struct {
	CommandName string
	RequestID   int32
	DurationMS  int64
	Reply       string
}

func (m CommandSucceededMessage) Component() Component { return ComponentCommand }
func (m CommandSucceededMessage) Message() string       { return "Command succeeded" }
func (m CommandSucceededMessage) Serialize() []interface{} {
	return []interface{}{
		"commandName", m.CommandName,
		"requestId", m.RequestID,
		"durationMS", m.DurationMS,
		"reply", m.Reply,
	}
}

// CommandFailedMessage is emitted for a network error or an ok:0 reply.
type CommandFailedMessage struct {
	CommandName string
	RequestID   int32
	DurationMS  int64
	Failure     string
}

func (m CommandFailedMessage) Component() Component { return ComponentCommand }
func (m CommandFailedMessage) Message() string       { return "Command failed" }
func (m CommandFailedMessage) Serialize() []interface{} {
	return []interface{}{
		"commandName", m.CommandName,
		"requestId", m.RequestID,
		"durationMS", m.DurationMS,
		"failure", m.Failure,
	}
}
