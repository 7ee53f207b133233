// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ocsp"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
)

// configureTLS upgrades nc to TLS, deriving ServerName from addr unless
// the caller already set one. Handshake runs on a goroutine so ctx
// cancellation can abort a hanging handshake (grounded on
// core/connection/connection.go's configureTLS).
func configureTLS(ctx context.Context, nc net.Conn, addr address.Address, cfg *TLSConfig) (net.Conn, error) {
	config := cfg.Config.Clone()
	if !config.InsecureSkipVerify && config.ServerName == "" {
		hostname := addr.String()
		if i := strings.LastIndex(hostname, ":"); i != -1 {
			hostname = hostname[:i]
		}
		config.ServerName = hostname
	}

	client := tls.Client(nc, config)

	errChan := make(chan error, 1)
	go func() {
		errChan <- client.Handshake()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
	case <-ctx.Done():
		return nil, errors.New("server connection cancelled/timeout during TLS handshake")
	}
	return client, nil
}

// LoadEncryptedPrivateKey parses a PKCS#8 private key that is itself
// encrypted under a passphrase (the "PRIVATE KEY" PEM block produced by
// `openssl pkcs8 -topk8 -v2 aes256`), as required by the
// tlsCertificateKeyFilePassword client option. The stdlib has no
// support for encrypted PKCS#8; this is exactly what
// github.com/youmark/pkcs8 exists for.
func LoadEncryptedPrivateKey(pemBlock []byte, password []byte) (interface{}, error) {
	block, _ := pem.Decode(pemBlock)
	if block == nil {
		return nil, errors.New("connection: no PEM block found in private key file")
	}
	return pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
}

// CheckOCSPStaple validates a stapled OCSP response obtained during the
// TLS handshake against the leaf certificate, implementing the
// must-staple revocation check the server's tlsCAFile option enables.
// Uses golang.org/x/crypto/ocsp, which the stdlib does not provide.
func CheckOCSPStaple(leaf, issuer *x509.Certificate, staple []byte) error {
	resp, err := ocsp.ParseResponseForCert(staple, leaf, issuer)
	if err != nil {
		return fmt.Errorf("connection: failed to parse OCSP staple: %w", err)
	}
	if resp.Status != ocsp.Good {
		return fmt.Errorf("connection: certificate revoked per OCSP staple (status %d)", resp.Status)
	}
	return nil
}
