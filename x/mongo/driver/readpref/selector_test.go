// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package readpref

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

func server(addr string, kind description.ServerKind) description.Server {
	return description.Server{Addr: address.Address(addr), Kind: kind}
}

func rsTopology(servers ...description.Server) description.Topology {
	kind := description.KindReplicaSetNoPrimary
	for _, s := range servers {
		if s.Kind == description.RSPrimary {
			kind = description.KindReplicaSetWithPrimary
		}
	}
	return description.Topology{Kind: kind, Servers: servers}
}

func addrs(servers []description.Server) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, string(s.Addr))
	}
	return out
}

func TestSelectServerModeFiltering(t *testing.T) {
	t.Parallel()

	primary := server("p:27017", description.RSPrimary)
	sec1 := server("s1:27017", description.RSSecondary)
	sec2 := server("s2:27017", description.RSSecondary)
	topo := rsTopology(primary, sec1, sec2)

	cases := []struct {
		name string
		mode Mode
		want []string
	}{
		{"primary", PrimaryMode, []string{"p:27017"}},
		{"secondary", SecondaryMode, []string{"s1:27017", "s2:27017"}},
		{"primaryPreferred", PrimaryPreferredMode, []string{"p:27017"}},
		{"secondaryPreferred", SecondaryPreferredMode, []string{"s1:27017", "s2:27017"}},
		{"nearest", NearestMode, []string{"p:27017", "s1:27017", "s2:27017"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rp, err := New(tc.mode)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, err := Selector{ReadPref: rp}.SelectServer(topo, topo.Servers)
			if err != nil {
				t.Fatalf("SelectServer: %v", err)
			}
			gotAddrs := addrs(got)
			if len(gotAddrs) != len(tc.want) {
				t.Fatalf("selected %v, want %v", gotAddrs, tc.want)
			}
			for i := range tc.want {
				if gotAddrs[i] != tc.want[i] {
					t.Fatalf("selected %v, want %v", gotAddrs, tc.want)
				}
			}
		})
	}
}

func TestSelectServerFallbackModes(t *testing.T) {
	t.Parallel()

	sec1 := server("s1:27017", description.RSSecondary)
	sec2 := server("s2:27017", description.RSSecondary)
	noPrimary := rsTopology(sec1, sec2)

	rp, err := New(PrimaryPreferredMode)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := Selector{ReadPref: rp}.SelectServer(noPrimary, noPrimary.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("primaryPreferred with no primary selected %v, want both secondaries", addrs(got))
	}

	primaryOnly := rsTopology(server("p:27017", description.RSPrimary))
	rp, err = New(SecondaryPreferredMode)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err = Selector{ReadPref: rp}.SelectServer(primaryOnly, primaryOnly.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 1 || got[0].Kind != description.RSPrimary {
		t.Fatalf("secondaryPreferred with no secondaries selected %v, want the primary", addrs(got))
	}

	rp, err = New(SecondaryMode)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err = Selector{ReadPref: rp}.SelectServer(primaryOnly, primaryOnly.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("secondary mode with no secondaries selected %v, want none", addrs(got))
	}
}

func TestSelectServerWritesRequirePrimary(t *testing.T) {
	t.Parallel()

	sec := server("s1:27017", description.RSSecondary)
	primary := server("p:27017", description.RSPrimary)

	withPrimary := rsTopology(primary, sec)
	got, err := Selector{IsWrite: true}.SelectServer(withPrimary, withPrimary.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 1 || got[0].Kind != description.RSPrimary {
		t.Fatalf("write selected %v, want only the primary", addrs(got))
	}

	noPrimary := rsTopology(sec)
	got, err = Selector{IsWrite: true}.SelectServer(noPrimary, noPrimary.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("write with no primary selected %v, want none", addrs(got))
	}

	// In sharded topologies any mongos accepts writes.
	mongos := server("m:27017", description.Mongos)
	sharded := description.Topology{Kind: description.KindSharded, Servers: []description.Server{mongos}}
	got, err = Selector{IsWrite: true}.SelectServer(sharded, sharded.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sharded write selected %v, want the mongos", addrs(got))
	}
}

func TestSelectServerUnknownTopologyReturnsNothing(t *testing.T) {
	t.Parallel()

	topo := description.Topology{Kind: description.KindUnknown, Servers: []description.Server{server("p:27017", description.RSPrimary)}}
	got, err := Selector{IsWrite: true}.SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unknown topology selected %v, want none", addrs(got))
	}
}

func TestSelectServerTagSetsFirstMatchWins(t *testing.T) {
	t.Parallel()

	east := server("s1:27017", description.RSSecondary)
	east.Tags = description.TagSet{"dc": "east"}
	west := server("s2:27017", description.RSSecondary)
	west.Tags = description.TagSet{"dc": "west"}
	topo := rsTopology(east, west)

	rp, err := New(SecondaryMode, WithTagSets(
		description.TagSet{"dc": "north"},
		description.TagSet{"dc": "west"},
		description.TagSet{"dc": "east"},
	))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := Selector{ReadPref: rp}.SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(got) != 1 || got[0].Addr != west.Addr {
		t.Fatalf("selected %v, want only s2 (first matching tag set wins)", addrs(got))
	}
}

func TestWithinLatencyWindow(t *testing.T) {
	t.Parallel()

	fast := server("s1:27017", description.RSSecondary)
	fast.AverageRTT = 5 * time.Millisecond
	fast.AverageRTTSet = true
	close1 := server("s2:27017", description.RSSecondary)
	close1.AverageRTT = 12 * time.Millisecond
	close1.AverageRTTSet = true
	slow := server("s3:27017", description.RSSecondary)
	slow.AverageRTT = 80 * time.Millisecond
	slow.AverageRTTSet = true

	got := WithinLatencyWindow([]description.Server{fast, close1, slow}, DefaultLocalThreshold)
	if len(got) != 2 {
		t.Fatalf("window = %v, want s1 and s2 only", addrs(got))
	}
	for _, s := range got {
		if s.Addr == slow.Addr {
			t.Fatalf("window %v includes the 80ms server", addrs(got))
		}
	}

	// Equal RTTs all stay in the window, so random tie-break can cover
	// every secondary.
	equal := WithinLatencyWindow([]description.Server{fast, fast, fast}, DefaultLocalThreshold)
	if len(equal) != 3 {
		t.Fatalf("equal-RTT window has %d entries, want 3", len(equal))
	}
}
