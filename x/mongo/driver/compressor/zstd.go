// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package compressor

import (
	"github.com/klauspost/compress/zstd"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Zstd implements Compressor using github.com/klauspost/compress/zstd.
// Encoders/decoders are expensive to construct so one pair is reused for
// the lifetime of the connection; callers must not use a Zstd value
// concurrently from multiple goroutines, matching the rest of
// Connection's single-owner usage.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd constructs a Zstd compressor. Encoder/decoder construction
// only fails on invalid options, never here, so error is swallowed into
// a zero-value (broken) compressor that will fail on first use -
// mirrors how the rest of the package keeps constructors error-free.
func NewZstd() *Zstd {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &Zstd{enc: enc, dec: dec}
}

func (*Zstd) CompressorID() wiremessage.CompressorID { return wiremessage.CompressorZstd }

func (*Zstd) Name() string { return "zstd" }

func (z *Zstd) CompressBytes(src, dst []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *Zstd) UncompressBytes(src, dst []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, dst[:0])
}
