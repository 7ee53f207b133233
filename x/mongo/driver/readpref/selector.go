// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package readpref

import (
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

// DefaultLocalThreshold is the RTT window used to build the "latency
// window" of equally-preferable servers.
const DefaultLocalThreshold = 15 * time.Millisecond

// Selector implements description.ServerSelector by running the
// read-preference filtering algorithm against a topology snapshot.
// IsWrite marks an operation that must route to a primary-capable node
// regardless of the configured Mode.
type Selector struct {
	ReadPref       *ReadPref
	IsWrite        bool
	LocalThreshold time.Duration
}

// SelectServer runs the five-step read-preference filter. It never
// waits; ServerSelectionTimeout retry/backoff is the caller's
// responsibility (topology.Topology.SelectServer).
func (s Selector) SelectServer(topo description.Topology, candidates []description.Server) ([]description.Server, error) {
	if topo.Kind == description.KindUnknown {
		return nil, nil
	}

	if s.IsWrite {
		return filterWritable(topo, candidates), nil
	}

	rp := s.ReadPref
	if rp == nil {
		rp = Primary()
	}

	var filtered []description.Server
	switch topo.Kind {
	case description.KindSingle:
		// A standalone always satisfies every read preference.
		filtered = candidates
	case description.KindSharded, description.KindLoadBalanced:
		filtered = candidates
	default:
		filtered = filterByMode(rp.Mode(), candidates)
	}

	if len(rp.TagSets()) > 0 && topo.Kind != description.KindSingle {
		filtered = filterByTagSets(filtered, rp.TagSets())
	}

	if maxStaleness, ok := rp.MaxStaleness(); ok {
		filtered = filterByMaxStaleness(topo, filtered, maxStaleness)
	}

	return filtered, nil
}

func filterWritable(topo description.Topology, candidates []description.Server) []description.Server {
	switch topo.Kind {
	case description.KindSingle, description.KindSharded, description.KindLoadBalanced:
		return candidates
	default:
		var out []description.Server
		for _, s := range candidates {
			if s.Kind == description.RSPrimary {
				out = append(out, s)
			}
		}
		return out
	}
}

func filterByMode(mode Mode, candidates []description.Server) []description.Server {
	var primaries, secondaries []description.Server
	for _, s := range candidates {
		switch s.Kind {
		case description.RSPrimary:
			primaries = append(primaries, s)
		case description.RSSecondary:
			secondaries = append(secondaries, s)
		}
	}

	switch mode {
	case PrimaryMode:
		return primaries
	case SecondaryMode:
		return secondaries
	case PrimaryPreferredMode:
		if len(primaries) > 0 {
			return primaries
		}
		return secondaries
	case SecondaryPreferredMode:
		if len(secondaries) > 0 {
			return secondaries
		}
		return primaries
	case NearestMode:
		return append(primaries, secondaries...)
	default:
		return nil
	}
}

func filterByTagSets(candidates []description.Server, tagSets []description.TagSet) []description.Server {
	for _, ts := range tagSets {
		var matched []description.Server
		for _, s := range candidates {
			if s.Tags.ContainsAll(ts) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}

func filterByMaxStaleness(topo description.Topology, candidates []description.Server, maxStaleness time.Duration) []description.Server {
	var primaryLastWrite time.Time
	var primaryHeartbeat time.Duration
	for _, s := range topo.Servers {
		if s.Kind == description.RSPrimary {
			primaryLastWrite = s.LastWriteTime
			primaryHeartbeat = s.HeartbeatInterval
			break
		}
	}

	if primaryLastWrite.IsZero() {
		for _, s := range topo.Servers {
			if s.Kind == description.RSSecondary && s.LastWriteTime.After(primaryLastWrite) {
				primaryLastWrite = s.LastWriteTime
				primaryHeartbeat = s.HeartbeatInterval
			}
		}
	}

	var out []description.Server
	for _, s := range candidates {
		if s.Kind == description.RSPrimary {
			out = append(out, s)
			continue
		}
		if primaryLastWrite.IsZero() {
			// no primary and no secondary with a known last write: nothing
			// to compare against, so the server is kept.
			out = append(out, s)
			continue
		}
		if !s.Stale(maxStaleness, primaryLastWrite, primaryHeartbeat) {
			out = append(out, s)
		}
	}
	return out
}

// WithinLatencyWindow narrows servers to those within threshold of the
// fastest RTT in the set; ties are broken by the
// caller picking uniformly at random among the result.
func WithinLatencyWindow(servers []description.Server, threshold time.Duration) []description.Server {
	if len(servers) == 0 {
		return nil
	}
	min := servers[0].AverageRTT
	for _, s := range servers[1:] {
		if s.AverageRTTSet && s.AverageRTT < min {
			min = s.AverageRTT
		}
	}
	var out []description.Server
	for _, s := range servers {
		if s.AverageRTT <= min+threshold {
			out = append(out, s)
		}
	}
	return out
}
