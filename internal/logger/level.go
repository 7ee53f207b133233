// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "strings"

// DiffToInfo is the number of levels that come before "Info" in the
// driver's scale, keeping Info at 0 for LogSink implementations (commonly
// go-logr's) that treat 0 as their baseline.
const DiffToInfo = 1

// Level is a log severity, ordered from least to most verbose.
type Level int

const (
	LevelOff Level = iota
	LevelInfo
	LevelDebug
)

var levelLiteralMap = map[string]Level{
	"off":   LevelOff,
	"error": LevelInfo,
	"warn":  LevelInfo,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelDebug,
}

// ParseLevel maps an environment-variable literal to a Level, defaulting
// to LevelOff for anything unrecognized.
func ParseLevel(str string) Level {
	for literal, level := range levelLiteralMap {
		if strings.EqualFold(literal, str) {
			return level
		}
	}
	return LevelOff
}

// Component names one driver subsystem that can be leveled independently:
// command, topology, server-selection, and connection-pool events.
type Component string

const (
	ComponentCommand          Component = "command"
	ComponentTopology         Component = "topology"
	ComponentServerSelection  Component = "serverSelection"
	ComponentConnection       Component = "connection"
)

type componentEnvVar string

const (
	componentEnvVarAll             componentEnvVar = "MONGODB_LOG_ALL"
	componentEnvVarCommand         componentEnvVar = "MONGODB_LOG_COMMAND"
	componentEnvVarTopology        componentEnvVar = "MONGODB_LOG_TOPOLOGY"
	componentEnvVarServerSelection componentEnvVar = "MONGODB_LOG_SERVER_SELECTION"
	componentEnvVarConnection      componentEnvVar = "MONGODB_LOG_CONNECTION"
)

var allComponentEnvVars = []componentEnvVar{
	componentEnvVarAll,
	componentEnvVarCommand,
	componentEnvVarTopology,
	componentEnvVarServerSelection,
	componentEnvVarConnection,
}

func (e componentEnvVar) component() Component {
	switch e {
	case componentEnvVarCommand:
		return ComponentCommand
	case componentEnvVarTopology:
		return ComponentTopology
	case componentEnvVarServerSelection:
		return ComponentServerSelection
	case componentEnvVarConnection:
		return ComponentConnection
	default:
		return ""
	}
}

// ComponentMessage is one loggable event: it names its Component, a
// human-readable Message, and a flat key/value Serialize() for the sink.
type ComponentMessage interface {
	Component() Component
	Message() string
	Serialize() []interface{}
}
