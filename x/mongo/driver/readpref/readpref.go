// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package readpref models the read-routing policy consumed by the
// server selector: {mode, tag-sets, max-staleness-seconds}.
package readpref

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

// Mode names one of the five read-preference modes.
type Mode uint8

const (
	PrimaryMode Mode = iota
	PrimaryPreferredMode
	SecondaryMode
	SecondaryPreferredMode
	NearestMode
)

func (m Mode) String() string {
	switch m {
	case PrimaryMode:
		return "primary"
	case PrimaryPreferredMode:
		return "primaryPreferred"
	case SecondaryMode:
		return "secondary"
	case SecondaryPreferredMode:
		return "secondaryPreferred"
	case NearestMode:
		return "nearest"
	default:
		return "unknown"
	}
}

// ReadPref is an immutable read preference.
type ReadPref struct {
	mode         Mode
	tagSets      []description.TagSet
	maxStaleness time.Duration
}

// Primary returns the Primary read preference, the default.
func Primary() *ReadPref { return &ReadPref{mode: PrimaryMode} }

// New constructs a ReadPref with the given mode and options.
func New(mode Mode, opts ...Option) (*ReadPref, error) {
	rp := &ReadPref{mode: mode}
	for _, opt := range opts {
		if err := opt(rp); err != nil {
			return nil, err
		}
	}
	if mode == PrimaryMode && (len(rp.tagSets) > 0 || rp.maxStaleness > 0) {
		return nil, errors.New("readpref: primary mode cannot be combined with tag sets or max staleness")
	}
	return rp, nil
}

// Option configures a ReadPref constructed via New.
type Option func(*ReadPref) error

// WithTagSets sets the ordered list of tag sets to try, first match wins.
func WithTagSets(tagSets ...description.TagSet) Option {
	return func(rp *ReadPref) error {
		rp.tagSets = tagSets
		return nil
	}
}

// WithMaxStaleness bounds how far behind a secondary's last write may
// lag the primary's.
func WithMaxStaleness(d time.Duration) Option {
	return func(rp *ReadPref) error {
		if d < 90*time.Second && d != 0 {
			return errors.New("readpref: max staleness must be at least 90s")
		}
		rp.maxStaleness = d
		return nil
	}
}

func (rp *ReadPref) Mode() Mode                         { return rp.mode }
func (rp *ReadPref) TagSets() []description.TagSet      { return rp.tagSets }
func (rp *ReadPref) MaxStaleness() (time.Duration, bool) { return rp.maxStaleness, rp.maxStaleness > 0 }
