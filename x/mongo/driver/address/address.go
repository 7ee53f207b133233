// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package address provides the canonical "host:port" addressing used to
// key Server descriptions within a Topology.
package address

import (
	"net"
	"strings"
)

// Address is a host:port pair, canonicalized to lowercase with a
// default port of 27017 when none is given.
type Address string

// Network returns the network Address dials over. Unix domain socket
// paths (ending in ".sock") use "unix"; everything else uses "tcp".
func (a Address) Network() string {
	if strings.HasSuffix(string(a), ".sock") {
		return "unix"
	}
	return "tcp"
}

func (a Address) String() string {
	return string(a)
}

// Canonicalize lowercases the host, supplies a default port of 27017 if
// absent, and strips any trailing dot from the hostname.
func (a Address) Canonicalize() Address {
	s := strings.ToLower(strings.TrimSpace(string(a)))
	if s == "" {
		return Address(s)
	}
	if strings.HasSuffix(s, ".sock") {
		return Address(s)
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host = strings.TrimSuffix(s, ".")
		port = "27017"
	} else {
		host = strings.TrimSuffix(host, ".")
	}
	return Address(net.JoinHostPort(host, port))
}
