// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package primitive contains the BSON leaf types that are not ordinary Go
// values: ObjectID, DateTime, Timestamp, Regex, and the singleton markers
// (MinKey, MaxKey, Undefined, Null, JavaScript, Symbol, DBPointer).
package primitive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// ObjectID is the 12-byte BSON identifier: a 4-byte big-endian seconds
// timestamp, a 3-byte machine identifier, a 2-byte process identifier,
// and a 3-byte big-endian counter.
type ObjectID [12]byte

// NilObjectID is the zero-value ObjectID.
var NilObjectID ObjectID

var machineID = readMachineID()
var processID = uint16(os.Getpid())

// objectIDCounter is seeded from an OS entropy source rather than the
// process-global rand() the original used; it
// then increments monotonically. Wraparound at 2^24 is tolerated because
// the timestamp prefix changes with it.
var objectIDCounter = readRandomUint32() & 0x00ffffff

func readMachineID() [3]byte {
	var id [3]byte
	host, err := os.Hostname()
	if err != nil || host == "" {
		if _, err := rand.Read(id[:]); err != nil {
			panic(fmt.Errorf("primitive: cannot seed objectid machine id: %w", err))
		}
		return id
	}
	sum := sha256.Sum256([]byte(host))
	copy(id[:], sum[:3])
	return id
}

func readRandomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("primitive: cannot seed objectid counter: %w", err))
	}
	return binary.BigEndian.Uint32(b[:])
}

// NewObjectID generates a new ObjectID. It is safe to call concurrently;
// the only mutable shared state is the monotonic counter.
func NewObjectID() ObjectID {
	var id ObjectID

	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:7], machineID[:])
	id[7] = byte(processID >> 8)
	id[8] = byte(processID)

	c := atomic.AddUint32(&objectIDCounter, 1) & 0x00ffffff
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}

// Timestamp returns the seconds-since-epoch encoded in the leading 4
// bytes of the ObjectID.
func (id ObjectID) Timestamp() time.Time {
	unix := int64(binary.BigEndian.Uint32(id[0:4]))
	return time.Unix(unix, 0).UTC()
}

// IsZero reports whether id is the NilObjectID.
func (id ObjectID) IsZero() bool {
	return id == NilObjectID
}

// Hex returns the 24-character lowercase hex encoding of id.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return fmt.Sprintf("ObjectID(%q)", id.Hex())
}

// ObjectIDFromHex parses a 24-character hex string into an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	if len(s) != 24 {
		return NilObjectID, errors.New("primitive: invalid ObjectID length, must be 24 hex characters")
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return NilObjectID, fmt.Errorf("primitive: invalid ObjectID: %w", err)
	}

	var id ObjectID
	copy(id[:], b)
	return id, nil
}

// IsValidObjectID reports whether s can be parsed by ObjectIDFromHex.
func IsValidObjectID(s string) bool {
	_, err := ObjectIDFromHex(s)
	return err == nil
}

// MarshalText implements encoding.TextMarshaler for use by extended-JSON
// and other textual encodings.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(b []byte) error {
	oid, err := ObjectIDFromHex(string(b))
	if err != nil {
		return err
	}
	*id = oid
	return nil
}
