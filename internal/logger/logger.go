// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger implements the driver's structured event logging: a
// LogSink abstraction (a subset of go-logr/logr's), per-Component levels
// overridable by environment variable, and an async job channel drained
// by a print-listener goroutine so a slow sink never blocks a command
// (grounded on internal/logger/logger.go, level.go).
package logger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const jobBufferSize = 100
const logSinkPathEnvVar = "MONGODB_LOG_PATH"
const maxDocumentLengthEnvVar = "MONGODB_LOG_MAX_DOCUMENT_LENGTH"

// DefaultMaxDocumentLength bounds how much of a stringified BSON document
// a log line includes before truncating.
const DefaultMaxDocumentLength = 1000

// TruncationSuffix marks a truncated value; it doesn't count toward the
// max length.
const TruncationSuffix = "..."

// LogSink is a logging implementation, deliberately a subset of
// go-logr/logr's LogSink interface so a caller can plug in a real logr
// sink without an adapter.
type LogSink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

type job struct {
	level Level
	msg   ComponentMessage
}

// Logger is the driver's event logger; it prints events whose level is
// enabled for their component through its LogSink, which New sets to
// MONGODB_LOG_PATH or os.Stderr when no sink is given.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              LogSink
	MaxDocumentLength uint

	jobs chan job
}

// New builds a Logger. componentLevels take priority over whatever the
// environment specifies; a nil sink falls back to MONGODB_LOG_PATH or
// os.Stderr.
func New(sink LogSink, maxDocumentLength uint, componentLevels map[Component]Level) *Logger {
	return &Logger{
		ComponentLevels: selectComponentLevels(
			func() map[Component]Level { return componentLevels },
			getEnvComponentLevels,
		),
		MaxDocumentLength: selectMaxDocumentLength(
			func() uint { return maxDocumentLength },
			getEnvMaxDocumentLength,
		),
		Sink: selectLogSink(
			func() LogSink { return sink },
			getEnvLogSink,
		),
		jobs: make(chan job, jobBufferSize),
	}
}

// Close stops the print-listener goroutine started by StartPrintListener.
func (logger *Logger) Close() { close(logger.jobs) }

// Is reports whether level is enabled for component.
func (logger *Logger) Is(level Level, component Component) bool {
	return logger.ComponentLevels[component] >= level
}

// Print enqueues msg for the print-listener goroutine without blocking
// the caller; a full queue drops the message rather than stall a command.
func (logger *Logger) Print(level Level, msg ComponentMessage) {
	select {
	case logger.jobs <- job{level, msg}:
	default:
	}
}

// StartPrintListener starts the goroutine that drains logger's job
// channel into its Sink. Call once per Logger.
func StartPrintListener(logger *Logger) {
	go func() {
		for j := range logger.jobs {
			if !logger.Is(j.level, j.msg.Component()) {
				continue
			}
			sink := logger.Sink
			if sink == nil {
				continue
			}
			kv := formatMessage(j.msg.Serialize(), logger.MaxDocumentLength)
			sink.Info(int(j.level)-DiffToInfo, j.msg.Message(), kv...)
		}
	}()
}

func truncate(str string, width uint) string {
	if len(str) <= int(width) {
		return str
	}
	return str[:width] + TruncationSuffix
}

func formatMessage(keysAndValues []interface{}, width uint) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	copy(out, keysAndValues)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok || (key != "command" && key != "reply") {
			continue
		}
		if s, ok := out[i+1].(string); ok {
			out[i+1] = truncate(s, width)
		}
	}
	return out
}

func getEnvMaxDocumentLength() uint {
	max := os.Getenv(maxDocumentLengthEnvVar)
	if max == "" {
		return 0
	}
	n, err := strconv.ParseUint(max, 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}

func selectMaxDocumentLength(getters ...func() uint) uint {
	for _, get := range getters {
		if n := get(); n != 0 {
			return n
		}
	}
	return DefaultMaxDocumentLength
}

type osSink struct {
	w *os.File
}

func newOSSink(w *os.File) *osSink { return &osSink{w: w} }

func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fmt.Fprintf(s.w, "[%d] %s %v\n", level, msg, keysAndValues)
}

func getEnvLogSink() LogSink {
	path := os.Getenv(logSinkPathEnvVar)
	switch strings.ToLower(path) {
	case "stderr":
		return newOSSink(os.Stderr)
	case "stdout":
		return newOSSink(os.Stdout)
	}
	if path != "" {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			return newOSSink(f)
		}
	}
	return nil
}

func selectLogSink(getters ...func() LogSink) LogSink {
	for _, get := range getters {
		if sink := get(); sink != nil {
			return sink
		}
	}
	return newOSSink(os.Stderr)
}

func getEnvComponentLevels() map[Component]Level {
	levels := make(map[Component]Level)
	globalLevel := ParseLevel(os.Getenv(string(componentEnvVarAll)))

	for _, envVar := range allComponentEnvVars {
		if envVar == componentEnvVarAll {
			continue
		}
		level := globalLevel
		if globalLevel == LevelOff {
			level = ParseLevel(os.Getenv(string(envVar)))
		}
		levels[envVar.component()] = level
	}
	return levels
}

func selectComponentLevels(getters ...func() map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)
	set := make(map[Component]struct{})
	for _, get := range getters {
		for component, level := range get() {
			if _, ok := set[component]; !ok {
				selected[component] = level
			}
			set[component] = struct{}{}
		}
	}
	return selected
}
