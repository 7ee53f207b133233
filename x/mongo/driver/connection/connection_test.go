// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/address"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// pipeDialer hands out the client half of a net.Pipe; the test drives the
// server half directly.
func pipeDialer(t *testing.T) (Dialer, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	dialer := DialerFunc(func(context.Context, string, string) (net.Conn, error) {
		return client, nil
	})
	return dialer, server
}

func pingMsg(t *testing.T, requestID int32) *wiremessage.Msg {
	t.Helper()
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendInt32Element("ping", 1); err != nil {
		t.Fatalf("AppendInt32Element: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return &wiremessage.Msg{
		MsgHeader: wiremessage.Header{RequestID: requestID},
		Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: doc}},
	}
}

func okReplyBytes(t *testing.T, responseTo int32) []byte {
	t.Helper()
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendDoubleElement("ok", 1); err != nil {
		t.Fatalf("AppendDoubleElement: %v", err)
	}
	doc, _, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	reply := wiremessage.Msg{
		MsgHeader: wiremessage.Header{ResponseTo: responseTo},
		Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: doc}},
	}
	buf, err := reply.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}
	return buf
}

// serveOneRPC reads one whole frame off server and responds with reply,
// reporting the request id it saw.
func serveOneRPC(t *testing.T, server net.Conn, reply func(requestID int32) []byte) <-chan int32 {
	t.Helper()
	seen := make(chan int32, 1)
	go func() {
		defer close(seen)
		var sizeBuf [4]byte
		if _, err := readFull(server, sizeBuf[:]); err != nil {
			return
		}
		size := int32(sizeBuf[0]) | int32(sizeBuf[1])<<8 | int32(sizeBuf[2])<<16 | int32(sizeBuf[3])<<24
		frame := make([]byte, size)
		copy(frame, sizeBuf[:])
		if _, err := readFull(server, frame[4:]); err != nil {
			return
		}
		hdr, err := wiremessage.ReadHeader(frame, 0)
		if err != nil {
			return
		}
		seen <- hdr.RequestID
		server.Write(reply(hdr.RequestID))
	}()
	return seen
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestRPCReplyCorrelation(t *testing.T) {
	t.Parallel()

	dialer, server := pipeDialer(t)
	conn, _, err := New(context.Background(), address.Address("localhost:27017"), WithDialer(dialer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conn.Close()

	seen := serveOneRPC(t, server, func(requestID int32) []byte {
		return okReplyBytes(t, requestID)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := pingMsg(t, wiremessage.NextRequestID())
	if err := conn.WriteWireMessage(ctx, msg); err != nil {
		t.Fatalf("WriteWireMessage: %v", err)
	}
	reply, err := conn.ReadWireMessage(ctx)
	if err != nil {
		t.Fatalf("ReadWireMessage: %v", err)
	}

	got, ok := reply.(*wiremessage.Msg)
	if !ok {
		t.Fatalf("reply is %T, want *wiremessage.Msg", reply)
	}
	if got.MsgHeader.ResponseTo != msg.MsgHeader.RequestID {
		t.Fatalf("response_to = %d, want request_id %d", got.MsgHeader.ResponseTo, msg.MsgHeader.RequestID)
	}
	if sent := <-seen; sent != msg.MsgHeader.RequestID {
		t.Fatalf("wire carried request_id %d, want %d", sent, msg.MsgHeader.RequestID)
	}
}

func TestRPCReplyCorrelationMismatchIsProtocolError(t *testing.T) {
	t.Parallel()

	dialer, server := pipeDialer(t)
	conn, _, err := New(context.Background(), address.Address("localhost:27017"), WithDialer(dialer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	serveOneRPC(t, server, func(requestID int32) []byte {
		return okReplyBytes(t, requestID+1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := pingMsg(t, wiremessage.NextRequestID())
	if err := conn.WriteWireMessage(ctx, msg); err != nil {
		t.Fatalf("WriteWireMessage: %v", err)
	}
	_, err = conn.ReadWireMessage(ctx)
	if err == nil {
		t.Fatalf("expected a protocol error for a mismatched response_to")
	}
	var perr wiremessage.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v (%T), want a wrapped wiremessage.ProtocolError", err, err)
	}
	if conn.Alive() {
		t.Fatalf("connection still alive after a protocol error")
	}
}

func TestReadRejectsOutOfRangeMessageLength(t *testing.T) {
	t.Parallel()

	dialer, server := pipeDialer(t)
	conn, _, err := New(context.Background(), address.Address("localhost:27017"), WithDialer(dialer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		// msg_len 5 is below the 16-byte header minimum.
		server.Write([]byte{0x05, 0x00, 0x00, 0x00})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ReadWireMessage(ctx)
	if err == nil {
		t.Fatalf("expected an error for msg_len below the header size")
	}
	if !errors.Is(err, wiremessage.ErrInvalidMessageLength) {
		t.Fatalf("err = %v, want ErrInvalidMessageLength", err)
	}
	if conn.Alive() {
		t.Fatalf("connection still alive after an out-of-range msg_len")
	}
}
