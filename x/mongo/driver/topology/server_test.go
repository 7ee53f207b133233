// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

func TestSelectOpcodeFamily(t *testing.T) {
	t.Parallel()

	addr := address.Address("localhost:27017")
	s := NewServer(addr)
	defer s.Stop()

	s.publish(description.Server{Addr: addr, Kind: description.Standalone, MaxWireVersion: 0})
	if got := s.SelectOpcodeFamily(); got != LegacyFamily {
		t.Fatalf("SelectOpcodeFamily() = %v, want LegacyFamily for maxWireVersion 0", got)
	}

	s.publish(description.Server{Addr: addr, Kind: description.Standalone, MaxWireVersion: 17})
	if got := s.SelectOpcodeFamily(); got != CommandFamily {
		t.Fatalf("SelectOpcodeFamily() = %v, want CommandFamily for maxWireVersion 17", got)
	}
}
