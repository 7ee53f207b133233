// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package compressor

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// DefaultZlibLevel matches the server's default compressionLevel.
const DefaultZlibLevel = 6

// Zlib implements Compressor using github.com/klauspost/compress/zlib.
type Zlib struct {
	level int
}

// NewZlib constructs a Zlib compressor at the given compression level;
// a level outside zlib's valid range is replaced by DefaultZlibLevel.
func NewZlib(level int) Zlib {
	if level < zlib.NoCompression || level > zlib.BestCompression {
		level = DefaultZlibLevel
	}
	return Zlib{level: level}
}

func (Zlib) CompressorID() wiremessage.CompressorID { return wiremessage.CompressorZlib }

func (Zlib) Name() string { return "zlib" }

func (z Zlib) CompressBytes(src, dst []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append(dst[:0], buf.Bytes()...), nil
}

func (Zlib) UncompressBytes(src, dst []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := dst[:0]
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
