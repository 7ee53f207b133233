// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package compressor implements the OP_COMPRESSED payload codecs
// negotiated during the handshake,
// grounded on core/connection/connection.go's compressor.Compressor
// usage but with the bodies wired to real third-party codecs instead of
// being left as an interface stub.
package compressor

import (
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Compressor compresses and decompresses the body of a wire message for
// OP_COMPRESSED transport.
type Compressor interface {
	// CompressorID returns the wire ID this codec negotiates as.
	CompressorID() wiremessage.CompressorID
	// Name is the string used during the "compression" handshake array.
	Name() string
	// CompressBytes compresses src into dst from its start (dst's
	// contents are overwritten, its capacity reused) and returns the
	// result.
	CompressBytes(src, dst []byte) ([]byte, error)
	// UncompressBytes decompresses src into dst from its start (dst's
	// contents are overwritten, its capacity reused) and returns the
	// result.
	UncompressBytes(src, dst []byte) ([]byte, error)
}

// SupportedCompressors builds the negotiable compressor set from a list
// of name preferences (the client's compressors URI option), skipping
// any name that isn't recognized.
func SupportedCompressors(names ...string) []Compressor {
	var out []Compressor
	for _, name := range names {
		switch name {
		case "snappy":
			out = append(out, NewSnappy())
		case "zlib":
			out = append(out, NewZlib(DefaultZlibLevel))
		case "zstd":
			out = append(out, NewZstd())
		}
	}
	return out
}
