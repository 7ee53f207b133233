// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"crypto/tls"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/compressor"
)

type config struct {
	appName      string
	connectTimeout time.Duration
	dialer       Dialer
	handshaker   Handshaker
	idleTimeout  time.Duration
	lifeTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	tlsConfig    *TLSConfig
	compressors  []compressor.Compressor
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		dialer: DefaultDialer,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Option configures a Connection constructed via New.
type Option func(*config) error

// WithAppName sets the application name reported in the handshake.
func WithAppName(name string) Option {
	return func(c *config) error {
		c.appName = name
		return nil
	}
}

// WithConnectTimeout bounds how long dialing may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.connectTimeout = d
		return nil
	}
}

// WithDialer overrides the network dialer, mainly for tests that need a
// fake net.Conn.
func WithDialer(d Dialer) Option {
	return func(c *config) error {
		c.dialer = d
		return nil
	}
}

// WithHandshaker sets the handshake performed immediately after dialing
// (and after any TLS upgrade), producing the connection's initial
// description.Server.
func WithHandshaker(h Handshaker) Option {
	return func(c *config) error {
		c.handshaker = h
		return nil
	}
}

// WithIdleTimeout sets how long a connection may sit unused before
// Expired reports true.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.idleTimeout = d
		return nil
	}
}

// WithLifeTimeout bounds the total lifetime of a connection regardless
// of use, forcing periodic rotation.
func WithLifeTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.lifeTimeout = d
		return nil
	}
}

// WithReadTimeout bounds a single ReadWireMessage call.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds a single WriteWireMessage call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.writeTimeout = d
		return nil
	}
}

// WithTLSConfig enables TLS, upgrading the dialed net.Conn before the
// handshake runs.
func WithTLSConfig(t *TLSConfig) Option {
	return func(c *config) error {
		c.tlsConfig = t
		return nil
	}
}

// WithCompressors sets the compressors offered during the handshake, in
// preference order.
func WithCompressors(compressors ...compressor.Compressor) Option {
	return func(c *config) error {
		c.compressors = compressors
		return nil
	}
}

// TLSConfig wraps a *tls.Config. When the config leaves ServerName empty
// and verification is on, the TLS upgrade derives it from the dialed
// address.
type TLSConfig struct {
	*tls.Config
}
