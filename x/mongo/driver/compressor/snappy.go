// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package compressor

import (
	"github.com/golang/snappy"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Snappy implements Compressor using github.com/golang/snappy.
type Snappy struct{}

// NewSnappy constructs a Snappy compressor.
func NewSnappy() Snappy { return Snappy{} }

func (Snappy) CompressorID() wiremessage.CompressorID { return wiremessage.CompressorSnappy }

func (Snappy) Name() string { return "snappy" }

func (Snappy) CompressBytes(src, dst []byte) ([]byte, error) {
	return snappy.Encode(dst[:0:cap(dst)], src), nil
}

func (Snappy) UncompressBytes(src, dst []byte) ([]byte, error) {
	// snappy.Decode requires dst have enough capacity or it allocates;
	// a nil dst is safe and simplest.
	decoded, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, err
	}
	return append(dst[:0], decoded...), nil
}
