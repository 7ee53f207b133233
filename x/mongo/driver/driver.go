// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// Deployment is the subset of topology.Topology an Operation needs: pick
// a server and hand back a connection.Connection the caller owns for the
// duration of one RPC (or, for a cursor-returning command, for the
// cursor's whole lifetime).
type Deployment interface {
	SelectServer(ctx context.Context, selector description.ServerSelector) (connection.Connection, *description.Server, error)
}

// Operation executes one command against a Deployment: build, select,
// frame, send, decode, canonicalize.
// Command builders in x/mongo/driver/operation construct one of these
// per call instead of hand-rolling the RPC loop themselves.
type Operation struct {
	// CommandFn builds the command document's body (everything except
	// $db and $clusterTime, which Execute injects; Execute adds no lsid,
	// even when Session is set).
	CommandFn func() (bsoncore.Document, error)
	Database  string
	ReadPref  *readpref.ReadPref
	IsWrite   bool
	Deployment Deployment
	Session    *session.Client
	Clock      *session.ClusterClock
}

func (op Operation) selector() description.ServerSelector {
	return readpref.Selector{ReadPref: op.ReadPref, IsWrite: op.IsWrite}
}

// Result is a successful Operation's reply document together with the
// connection and server it ran against. Single-reply commands should
// Close the connection once done reading Reply; cursor-returning
// commands hand it to batchcursor.New instead, which keeps it for the
// cursor's lifetime and closes it in Close.
type Result struct {
	Reply bsoncore.Document
	Conn  connection.Connection
	Server *description.Server
}

// Execute runs the full RPC: select a server, frame the built command as
// an OP_MSG, write it, read the reply, gossip $clusterTime, and
// canonicalize an ok:0 reply into a Command-domain Error. The connection
// in a successful Result is always left open; it is the caller's
// responsibility to close it.
func (op Operation) Execute(ctx context.Context) (Result, error) {
	if op.CommandFn == nil {
		return Result{}, InvalidArgument("operation: no command to execute")
	}
	cmd, err := op.CommandFn()
	if err != nil {
		return Result{}, err
	}

	conn, desc, err := op.Deployment.SelectServer(ctx, op.selector())
	if err != nil {
		return Result{}, err
	}

	full := op.decorate(cmd)

	msg := wiremessage.Msg{
		MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
		Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: full}},
	}

	if err := conn.WriteWireMessage(ctx, &msg); err != nil {
		conn.Close()
		return Result{}, &Error{Domain: NetworkDomain, Message: "unable to write command", Wrapped: err}
	}

	reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		conn.Close()
		return Result{}, &Error{Domain: NetworkDomain, Message: "unable to read command reply", Wrapped: err}
	}

	body, err := bodyOf(reply)
	if err != nil {
		conn.Close()
		return Result{}, &Error{Domain: ProtocolDomain, Message: "malformed command reply", Wrapped: err}
	}

	if op.Clock != nil {
		if ct, lookupErr := body.LookupErr("$clusterTime"); lookupErr == nil {
			if ctDoc, ok := ct.DocumentOK(); ok {
				op.Clock.AdvanceClusterTime(ctDoc)
			}
		}
	}

	if cmdErr := checkOK(body); cmdErr != nil {
		conn.Close()
		return Result{Reply: body, Server: desc}, cmdErr
	}

	return Result{Reply: body, Conn: conn, Server: desc}, nil
}

// decorate appends $db and, when Clock is set, the gossiped
// $clusterTime the server most recently reported.
func (op Operation) decorate(cmd bsoncore.Document) bsoncore.Document {
	b := bsoncore.NewDocumentBuilder()
	elems, _ := cmd.Elements()
	for _, e := range elems {
		b.AppendValueElement(e.Key(), e.Value())
	}
	b.AppendStringElement("$db", op.Database)
	if op.Clock != nil {
		if ct := op.Clock.GetClusterTime(); ct != nil {
			b.AppendDocumentElement("$clusterTime", ct)
		}
	}
	out, _, _ := b.Finish()
	return out
}

func bodyOf(wm wiremessage.WireMessage) (bsoncore.Document, error) {
	m, ok := wm.(*wiremessage.Msg)
	if !ok {
		return nil, errors.New("expected OP_MSG reply")
	}
	for _, s := range m.Sections {
		if s.Kind == wiremessage.MsgSectionBody {
			return bsoncore.Document(s.Document), nil
		}
	}
	return nil, errors.New("OP_MSG reply had no body section")
}

// checkOK inspects a reply's top-level "ok" field, returning a
// Command-domain Error when the server reported failure; the server's
// code and errmsg are preserved verbatim.
func checkOK(doc bsoncore.Document) error {
	v, err := doc.LookupErr("ok")
	if err != nil {
		return nil
	}
	n, ok := v.AsInt64()
	if ok && n == 1 {
		return nil
	}

	var serverCode int32
	if cv, cerr := doc.LookupErr("code"); cerr == nil {
		if n, ok := cv.AsInt64(); ok {
			serverCode = int32(n)
		}
	}
	errmsg := "command failed"
	if ev, eerr := doc.LookupErr("errmsg"); eerr == nil {
		if s, ok := ev.StringValueOK(); ok {
			errmsg = s
		}
	}
	return NewCommandError(doc, serverCode, errmsg)
}
