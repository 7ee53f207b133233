// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connstring parses a mongodb:// connection string into the
// pieces mongo.Connect needs to build a topology.Topology: the seed
// list, credential, and connection-level options.
package connstring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ConnString is the parsed form of a mongodb:// URI.
type ConnString struct {
	Original string

	Hosts []string

	Username    string
	Password    string
	PasswordSet bool
	AuthSource  string
	AuthMechanism string

	Database string

	AppName string

	ReplicaSet string
	Compressors []string

	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration

	TLS bool

	W          string
	WNumber    int
	WNumberSet bool
	Journal    bool
	JournalSet bool
	WTimeout   time.Duration

	DirectConnection bool
}

const schemeMongoDB = "mongodb://"

// Parse parses a mongodb:// URI into a ConnString: one pass over
// net/url.Parse followed by query-option dispatch.
func Parse(uri string) (ConnString, error) {
	if !strings.HasPrefix(uri, schemeMongoDB) {
		return ConnString{}, fmt.Errorf("connstring: uri must begin with %q", schemeMongoDB)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return ConnString{}, fmt.Errorf("connstring: %w", err)
	}

	cs := ConnString{Original: uri}

	if u.User != nil {
		cs.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cs.Password = pw
			cs.PasswordSet = true
		}
	}

	cs.Hosts = strings.Split(u.Host, ",")
	for i, h := range cs.Hosts {
		if h == "" {
			return ConnString{}, fmt.Errorf("connstring: empty host at position %d", i)
		}
	}

	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		cs.Database = db
	}

	if err := cs.parseOptions(u.Query()); err != nil {
		return ConnString{}, err
	}

	return cs, nil
}

func (cs *ConnString) parseOptions(q url.Values) error {
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		val := values[0]
		var err error
		switch strings.ToLower(key) {
		case "authsource":
			cs.AuthSource = val
		case "authmechanism":
			cs.AuthMechanism = val
		case "appname":
			cs.AppName = val
		case "replicaset":
			cs.ReplicaSet = val
		case "compressors":
			cs.Compressors = strings.Split(val, ",")
		case "ssl", "tls":
			cs.TLS, err = strconv.ParseBool(val)
		case "directconnection":
			cs.DirectConnection, err = strconv.ParseBool(val)
		case "connecttimeoutms":
			cs.ConnectTimeout, err = parseMillisecondOption(val)
		case "serverselectiontimeoutms":
			cs.ServerSelectionTimeout, err = parseMillisecondOption(val)
		case "heartbeatfrequencyms":
			cs.HeartbeatInterval, err = parseMillisecondOption(val)
		case "wtimeoutms":
			cs.WTimeout, err = parseMillisecondOption(val)
		case "w":
			if n, nerr := strconv.Atoi(val); nerr == nil {
				cs.WNumber = n
				cs.WNumberSet = true
			} else {
				cs.W = val
			}
		case "journal":
			cs.Journal, err = strconv.ParseBool(val)
			if err == nil {
				cs.JournalSet = true
			}
		default:
			// Unrecognized options are ignored rather than rejected: the
			// URI format evolves faster than any single core needs to
			// track every option.
		}
		if err != nil {
			return fmt.Errorf("connstring: option %q: %w", key, err)
		}
	}
	return nil
}

func parseMillisecondOption(val string) (time.Duration, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}
