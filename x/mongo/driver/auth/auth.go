// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package auth implements the SCRAM and MONGODB-CR authentication
// handshakes the wire protocol requires before a Connection is surfaced
// as usable: if the URI names credentials, the SASL handshake runs
// before the connection is returned to its pool. Other mechanisms,
// e.g. X.509 or Kerberos, stay out of scope.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Credential names a principal and the mechanism to authenticate it
// with, parsed out of the connection URI's userinfo + authMechanism
// option (ambient connstring config layer).
type Credential struct {
	Source      string
	Username    string
	Password    string
	Mechanism   string // "SCRAM-SHA-1", "SCRAM-SHA-256", or "MONGODB-CR"
	PasswordSet bool
}

// Authenticator runs a mechanism's handshake over a connection.
type Authenticator interface {
	Auth(ctx context.Context, cred Credential, rw wiremessage.ReadWriter) error
}

// CreateAuthenticator resolves cred.Mechanism to a concrete
// Authenticator, defaulting to SCRAM-SHA-256 when unset (the driver's
// "negotiate" default once SCRAM-SHA-1 support is widespread).
func CreateAuthenticator(cred Credential) (Authenticator, error) {
	switch cred.Mechanism {
	case "", "SCRAM-SHA-256":
		return &ScramAuthenticator{mechanism: "SCRAM-SHA-256"}, nil
	case "SCRAM-SHA-1":
		return &ScramAuthenticator{mechanism: "SCRAM-SHA-1"}, nil
	case "MONGODB-CR":
		return &mongoCRAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("auth: unsupported mechanism %q", cred.Mechanism)
	}
}

// mongoCRAuthenticator implements the legacy MONGODB-CR challenge using
// the server-mandated MD5(username:mongo:password) digest. This predates
// SCRAM and is kept only because live deployments still run it; the
// digest is the server's literal wire contract, not a hashing choice of
// ours, so it stays on crypto/md5 rather than a third-party hash lib.
type mongoCRAuthenticator struct{}

func (a *mongoCRAuthenticator) Auth(ctx context.Context, cred Credential, rw wiremessage.ReadWriter) error {
	nonceBuilder := bsoncore.NewDocumentBuilder()
	if err := nonceBuilder.AppendInt32Element("getnonce", 1); err != nil {
		return err
	}
	nonceDoc, err := runCommand(ctx, rw, cred.Source, nonceBuilder)
	if err != nil {
		return err
	}
	nonce, ok := lookupString(nonceDoc, "nonce")
	if !ok {
		return fmt.Errorf("auth: getnonce reply missing nonce")
	}

	digest := md5.Sum([]byte(cred.Username + ":mongo:" + cred.Password))
	key := md5.Sum([]byte(nonce + cred.Username + hex.EncodeToString(digest[:])))

	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("authenticate", 1); err != nil {
		return err
	}
	if err := b.AppendStringElement("nonce", nonce); err != nil {
		return err
	}
	if err := b.AppendStringElement("user", cred.Username); err != nil {
		return err
	}
	if err := b.AppendStringElement("key", hex.EncodeToString(key[:])); err != nil {
		return err
	}

	_, err = runCommand(ctx, rw, cred.Source, b)
	return err
}

func runCommand(ctx context.Context, rw wiremessage.ReadWriter, db string, b *bsoncore.Builder) (bsoncore.Document, error) {
	doc, _, err := b.Finish()
	if err != nil {
		return nil, err
	}

	msg := wiremessage.Msg{
		MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
		Sections: []wiremessage.MsgSection{
			{Kind: wiremessage.MsgSectionBody, Document: appendDBElement(doc, db)},
		},
	}
	if err := rw.WriteWireMessage(ctx, &msg); err != nil {
		return nil, err
	}

	reply, err := rw.ReadWireMessage(ctx)
	if err != nil {
		return nil, err
	}

	m, ok := reply.(*wiremessage.Msg)
	if !ok {
		return nil, fmt.Errorf("auth: expected OP_MSG reply")
	}
	for _, s := range m.Sections {
		if s.Kind == wiremessage.MsgSectionBody {
			return bsoncore.Document(s.Document), checkOK(bsoncore.Document(s.Document))
		}
	}
	return nil, fmt.Errorf("auth: reply had no body section")
}

func appendDBElement(doc bsoncore.Document, db string) []byte {
	b := bsoncore.NewDocumentBuilder()
	elems, _ := doc.Elements()
	for _, e := range elems {
		b.AppendValueElement(e.Key(), e.Value())
	}
	b.AppendStringElement("$db", db)
	out, _, _ := b.Finish()
	return out
}

func checkOK(doc bsoncore.Document) error {
	v, err := doc.LookupErr("ok")
	if err != nil {
		return fmt.Errorf("auth: reply missing ok field")
	}
	n, ok := v.AsInt64()
	if !ok || n != 1 {
		errmsg, _ := lookupString(doc, "errmsg")
		return fmt.Errorf("auth: command failed: %s", errmsg)
	}
	return nil
}

func lookupString(doc bsoncore.Document, key string) (string, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return "", false
	}
	return v.StringValueOK()
}
