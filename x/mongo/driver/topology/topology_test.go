// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

// unreachableChecker blocks every heartbeat until its deadline, keeping
// monitored servers in the Unknown state without touching the network
// and without racing a failure publication against the test body.
type unreachableChecker struct{}

func (unreachableChecker) Check(ctx context.Context, _ address.Address) (description.Server, error) {
	<-ctx.Done()
	return description.Server{}, ctx.Err()
}

func serverMap(servers ...description.Server) map[address.Address]description.Server {
	m := make(map[address.Address]description.Server, len(servers))
	for _, s := range servers {
		m[s.Addr] = s
	}
	return m
}

func TestClassifyTopologyKinds(t *testing.T) {
	t.Parallel()

	primary := description.Server{Addr: "p:27017", Kind: description.RSPrimary}
	secondary := description.Server{Addr: "s:27017", Kind: description.RSSecondary}
	mongos := description.Server{Addr: "m:27017", Kind: description.Mongos}
	unknown := description.Server{Addr: "u:27017", Kind: description.Unknown}

	cases := []struct {
		name    string
		cfg     topologyConfig
		servers map[address.Address]description.Server
		want    description.Kind
	}{
		{"single mode wins regardless of roles", topologyConfig{mode: SingleMode}, serverMap(secondary), description.KindSingle},
		{"primary present", topologyConfig{}, serverMap(primary, secondary), description.KindReplicaSetWithPrimary},
		{"secondaries only", topologyConfig{}, serverMap(secondary), description.KindReplicaSetNoPrimary},
		{"mongos observed", topologyConfig{}, serverMap(mongos), description.KindSharded},
		{"nothing reachable", topologyConfig{}, serverMap(unknown), description.KindUnknown},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			kind, _, _ := classify(tc.cfg, tc.servers, primitive.NilObjectID, 0)
			if kind != tc.want {
				t.Fatalf("classify = %v, want %v", kind, tc.want)
			}
		})
	}
}

func TestClassifyRejectsStalePrimary(t *testing.T) {
	t.Parallel()

	newEID, err := primitive.ObjectIDFromHex("aaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("ObjectIDFromHex: %v", err)
	}
	oldEID, err := primitive.ObjectIDFromHex("000000000000000000000001")
	if err != nil {
		t.Fatalf("ObjectIDFromHex: %v", err)
	}

	stale := description.Server{Addr: "old:27017", Kind: description.RSPrimary, SetVersion: 1, ElectionID: oldEID}

	// A primary that lost an election its own view hasn't caught up with
	// must not count as the set's primary.
	kind, maxEID, maxSV := classify(topologyConfig{}, serverMap(stale), newEID, 2)
	if kind != description.KindUnknown {
		t.Fatalf("classify = %v, want Unknown (only member is a stale primary)", kind)
	}
	if maxEID != newEID || maxSV != 2 {
		t.Fatalf("watermark moved backward to (%v, %d)", maxEID, maxSV)
	}

	// A genuinely newer primary advances the watermark.
	fresh := description.Server{Addr: "new:27017", Kind: description.RSPrimary, SetVersion: 3, ElectionID: oldEID}
	kind, maxEID, maxSV = classify(topologyConfig{}, serverMap(fresh), newEID, 2)
	if kind != description.KindReplicaSetWithPrimary {
		t.Fatalf("classify = %v, want ReplicaSetWithPrimary", kind)
	}
	if maxSV != 3 || maxEID != oldEID {
		t.Fatalf("watermark = (%v, %d), want the new primary's (setVersion, electionId)", maxEID, maxSV)
	}
}

func TestApplyServerDescriptionUnionsAndPrunesHosts(t *testing.T) {
	t.Parallel()

	topo := New(
		WithSeedList("a:27017", "stray:27017"),
		WithServerOptions(
			WithChecker(unreachableChecker{}),
			WithHeartbeatInterval(time.Hour),
		),
	)
	defer topo.Close()

	primary := description.Server{
		Addr:  "a:27017",
		Kind:  description.RSPrimary,
		Hosts: []string{"a:27017", "b:27017"},
	}
	topo.applyServerDescription(primary)

	topo.mu.Lock()
	_, hasB := topo.servers["b:27017"]
	_, hasStray := topo.servers["stray:27017"]
	topo.mu.Unlock()

	if !hasB {
		t.Fatalf("host b:27017 from the primary's hosts[] was not scheduled for monitoring")
	}
	if hasStray {
		t.Fatalf("stray:27017 is absent from the authoritative primary's hosts[] but was kept")
	}

	if got := topo.Description().Kind; got != description.KindReplicaSetWithPrimary {
		t.Fatalf("topology kind = %v, want ReplicaSetWithPrimary", got)
	}
}

func TestSelectServerTimesOutWithUnknownTopology(t *testing.T) {
	t.Parallel()

	topo := New(
		WithSeedList("a:27017"),
		WithServerOptions(
			WithChecker(unreachableChecker{}),
			WithHeartbeatInterval(time.Hour),
		),
		WithServerSelectionTimeout(20*time.Millisecond),
	)
	defer topo.Close()

	sel := description.ServerSelectorFunc(func(t description.Topology, c []description.Server) ([]description.Server, error) {
		if t.Kind == description.KindUnknown {
			return nil, nil
		}
		return c, nil
	})

	_, _, err := topo.SelectServer(context.Background(), sel)
	if err == nil {
		t.Fatalf("expected a server selection timeout")
	}
	if _, ok := err.(ServerSelectionError); !ok {
		t.Fatalf("err = %T (%v), want ServerSelectionError", err, err)
	}
}

func TestPickWithinWindowCoversEqualRTTServers(t *testing.T) {
	t.Parallel()

	topo := New()
	defer topo.Close()

	suitable := []description.Server{
		{Addr: "s1:27017", Kind: description.RSSecondary, AverageRTT: 5 * time.Millisecond, AverageRTTSet: true},
		{Addr: "s2:27017", Kind: description.RSSecondary, AverageRTT: 5 * time.Millisecond, AverageRTTSet: true},
		{Addr: "s3:27017", Kind: description.RSSecondary, AverageRTT: 5 * time.Millisecond, AverageRTTSet: true},
	}

	seen := make(map[address.Address]int)
	for i := 0; i < 300; i++ {
		seen[topo.pickWithinWindow(suitable).Addr]++
	}
	for _, s := range suitable {
		if seen[s.Addr] == 0 {
			t.Fatalf("server %s was never selected across 300 picks: %v", s.Addr, seen)
		}
	}

	// A server far outside the latency window must never be picked.
	slow := description.Server{Addr: "slow:27017", Kind: description.RSSecondary, AverageRTT: 500 * time.Millisecond, AverageRTTSet: true}
	for i := 0; i < 100; i++ {
		if topo.pickWithinWindow(append(suitable, slow)).Addr == slow.Addr {
			t.Fatalf("picked the 500ms server despite three 5ms candidates")
		}
	}
}
