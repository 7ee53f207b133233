// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package operation builds the commands the core issues itself: the
// hello/isMaster handshake, find, the three write
// commands, count, dropDatabase, and listCollections. Each builder
// wraps driver.Operation/driver.Coordinator; arbitrary commands a
// caller builds by hand pass through those same types directly.
package operation

import (
	"context"
	"strconv"

	"go.mongodb.org/mongo-go-driver-core/bson/primitive"
	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/auth"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/compressor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Handshaker implements connection.Handshaker: it runs hello, falling
// back to legacy isMaster when hello fails, then authenticates if a
// credential is configured, producing the connection's initial
// description.Server.
type Handshaker struct {
	AppName     string
	Compressors []compressor.Compressor
	Credential  *auth.Credential
}

var _ connection.Handshaker = Handshaker{}

func (h Handshaker) Handshake(ctx context.Context, addr address.Address, rw wiremessage.ReadWriter) (description.Server, error) {
	doc, err := h.runHello(ctx, rw)
	if err != nil {
		return description.Server{}, err
	}

	desc := parseHello(addr, doc)

	if h.Credential != nil {
		authenticator, err := auth.CreateAuthenticator(*h.Credential)
		if err != nil {
			return description.Server{}, err
		}
		if err := authenticator.Auth(ctx, *h.Credential, rw); err != nil {
			return description.Server{}, err
		}
	}

	return desc, nil
}

// runHello sends "hello" first; on any failure (the error is not
// inspected; old servers don't know the name) it retries with
// "isMaster", and as a last
// resort frames isMaster as an OP_QUERY against admin.$cmd for servers
// that predate OP_MSG entirely.
func (h Handshaker) runHello(ctx context.Context, rw wiremessage.ReadWriter) (bsoncore.Document, error) {
	doc, err := h.sendHello(ctx, rw, "hello")
	if err == nil {
		return doc, nil
	}
	if doc, err2 := h.sendHello(ctx, rw, "isMaster"); err2 == nil {
		return doc, nil
	}
	if doc, err3 := h.sendHelloLegacy(ctx, rw); err3 == nil {
		return doc, nil
	}
	return nil, err
}

// sendHelloLegacy is the pre-OP_MSG handshake: {isMaster: 1} as an
// OP_QUERY against the admin.$cmd pseudo-collection, answered with an
// OP_REPLY. Outgoing legacy-family messages carry response_to -1.
func (h Handshaker) sendHelloLegacy(ctx context.Context, rw wiremessage.ReadWriter) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("isMaster", 1); err != nil {
		return nil, err
	}
	cmd, _, err := b.Finish()
	if err != nil {
		return nil, err
	}

	query := &wiremessage.Query{
		MsgHeader:          wiremessage.Header{RequestID: wiremessage.NextRequestID(), ResponseTo: -1},
		FullCollectionName: "admin.$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	}
	if err := rw.WriteWireMessage(ctx, query); err != nil {
		return nil, err
	}
	reply, err := rw.ReadWireMessage(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := reply.(*wiremessage.Reply)
	if !ok || len(r.Documents) == 0 {
		return nil, errNotOpReply
	}
	body := bsoncore.Document(r.Documents[0])
	if ok, _ := lookupBool(body, "ok"); !ok {
		errmsg, _ := lookupString(body, "errmsg")
		return nil, handshakeError(errmsg)
	}
	return body, nil
}

func (h Handshaker) sendHello(ctx context.Context, rw wiremessage.ReadWriter, commandName string) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element(commandName, 1); err != nil {
		return nil, err
	}
	if err := b.AppendStringElement("$db", "admin"); err != nil {
		return nil, err
	}
	if h.AppName != "" {
		if err := b.StartDocument("client"); err == nil {
			b.StartDocument("application")
			b.AppendStringElement("name", h.AppName)
			b.FinishDocument()
			b.FinishDocument()
		}
	}
	if len(h.Compressors) > 0 {
		if err := b.StartArray("compression"); err == nil {
			for i, c := range h.Compressors {
				b.AppendStringElement(strconv.Itoa(i), c.Name())
			}
			b.FinishArray()
		}
	}
	cmd, _, err := b.Finish()
	if err != nil {
		return nil, err
	}

	msg := wiremessage.Msg{
		MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
		Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: cmd}},
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
		return nil, errNotOpMsg
	}
	var body bsoncore.Document
	for _, s := range m.Sections {
		if s.Kind == wiremessage.MsgSectionBody {
			body = bsoncore.Document(s.Document)
		}
	}
	if body == nil {
		return nil, errNoBodySection
	}
	if ok, _ := lookupBool(body, "ok"); !ok {
		errmsg, _ := lookupString(body, "errmsg")
		return nil, handshakeError(errmsg)
	}
	return body, nil
}

// parseHello maps a hello/isMaster reply onto a description.Server,
// reading maxBsonObjectSize, maxWriteBatchSize, maxMessageSizeBytes,
// maxWireVersion, and minWireVersion.
func parseHello(addr address.Address, doc bsoncore.Document) description.Server {
	d := description.Server{Addr: addr}

	d.Kind = classifyKind(doc)

	if setName, ok := lookupString(doc, "setName"); ok {
		d.SetName = setName
	}
	if v, err := doc.LookupErr("setVersion"); err == nil {
		if n, ok := v.AsInt64(); ok {
			d.SetVersion = uint32(n)
		}
	}
	if v, err := doc.LookupErr("electionId"); err == nil {
		if oid, ok := v.ObjectIDOK(); ok {
			d.ElectionID = primitive.ObjectID(oid)
		}
	}
	if primaryAddr, ok := lookupString(doc, "primary"); ok {
		d.Primary = address.Address(primaryAddr).Canonicalize()
	}
	if me, ok := lookupString(doc, "me"); ok {
		d.Me = me
	}
	d.Hosts = lookupStringArray(doc, "hosts")
	d.Passives = lookupStringArray(doc, "passives")
	d.Arbiters = lookupStringArray(doc, "arbiters")
	d.Compression = lookupStringArray(doc, "compression")

	if v, err := doc.LookupErr("tags"); err == nil {
		if tagsDoc, ok := v.DocumentOK(); ok {
			tags := description.TagSet{}
			elems, _ := tagsDoc.Elements()
			for _, e := range elems {
				if s, ok := e.Value().StringValueOK(); ok {
					tags[e.Key()] = s
				}
			}
			d.Tags = tags
		}
	}

	if n, ok := lookupInt64(doc, "maxBsonObjectSize"); ok {
		d.MaxDocumentSize = uint32(n)
	}
	if n, ok := lookupInt64(doc, "maxMessageSizeBytes"); ok {
		d.MaxMessageSize = uint32(n)
	}
	if n, ok := lookupInt64(doc, "maxWriteBatchSize"); ok {
		d.MaxBatchCount = uint32(n)
	}
	if n, ok := lookupInt64(doc, "minWireVersion"); ok {
		d.MinWireVersion = int32(n)
	}
	if n, ok := lookupInt64(doc, "maxWireVersion"); ok {
		d.MaxWireVersion = int32(n)
	}

	return d
}

func classifyKind(doc bsoncore.Document) description.ServerKind {
	if msg, ok := lookupString(doc, "msg"); ok && msg == "isdbgrid" {
		return description.Mongos
	}
	_, hasSetName := lookupString(doc, "setName")
	isMaster, _ := lookupBool(doc, "ismaster")
	if !isMaster {
		isMaster, _ = lookupBool(doc, "isWritablePrimary")
	}
	secondary, _ := lookupBool(doc, "secondary")
	arbiterOnly, _ := lookupBool(doc, "arbiterOnly")
	isReplicaSet, _ := lookupBool(doc, "isreplicaset")

	switch {
	case isReplicaSet:
		return description.RSGhost
	case hasSetName && isMaster:
		return description.RSPrimary
	case hasSetName && secondary:
		return description.RSSecondary
	case hasSetName && arbiterOnly:
		return description.RSArbiter
	case hasSetName:
		return description.RSMember
	default:
		return description.Standalone
	}
}

func lookupBool(doc bsoncore.Document, key string) (bool, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return false, false
	}
	return v.BooleanOK()
}

func lookupString(doc bsoncore.Document, key string) (string, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return "", false
	}
	return v.StringValueOK()
}

func lookupInt64(doc bsoncore.Document, key string) (int64, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false
	}
	return v.AsInt64()
}

func lookupStringArray(doc bsoncore.Document, key string) []string {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, val := range values {
		if s, ok := val.StringValueOK(); ok {
			out = append(out, s)
		}
	}
	return out
}

type handshakeError string

func (e handshakeError) Error() string { return "operation: hello failed: " + string(e) }

const errNotOpMsg = constError("operation: expected OP_MSG reply to hello")
const errNotOpReply = constError("operation: expected OP_REPLY with a document to legacy isMaster")
const errNoBodySection = constError("operation: hello reply had no body section")

type constError string

func (e constError) Error() string { return string(e) }
