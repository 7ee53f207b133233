// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/xdg-go/scram"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
)

// ScramAuthenticator drives the saslStart/saslContinue exchange using
// github.com/xdg-go/scram's client conversation, which itself depends on
// xdg-go/stringprep (SASLprep) and xdg-go/pbkdf2 for key derivation.
type ScramAuthenticator struct {
	mechanism string
}

func (a *ScramAuthenticator) hashGenerator() scram.HashGeneratorFcn {
	if a.mechanism == "SCRAM-SHA-1" {
		return func() hash.Hash { return sha1.New() }
	}
	return func() hash.Hash { return sha256.New() }
}

func (a *ScramAuthenticator) Auth(ctx context.Context, cred Credential, rw wiremessage.ReadWriter) error {
	client, err := a.hashGenerator().NewClient(cred.Username, cred.Password, "")
	if err != nil {
		return fmt.Errorf("auth: scram client: %w", err)
	}
	conv := client.NewConversation()

	payload, err := conv.Step("")
	if err != nil {
		return fmt.Errorf("auth: scram step 1: %w", err)
	}

	startBuilder := bsoncore.NewDocumentBuilder()
	startBuilder.AppendInt32Element("saslStart", 1)
	startBuilder.AppendStringElement("mechanism", a.mechanism)
	startBuilder.AppendBinaryElement("payload", 0x00, []byte(payload))
	startBuilder.AppendBooleanElement("autoAuthorize", true)

	reply, err := runCommand(ctx, rw, cred.Source, startBuilder)
	if err != nil {
		return err
	}

	for {
		done, _ := lookupBool(reply, "done")
		conversationID, _ := reply.LookupErr("conversationId")

		serverPayload, ok := lookupBinary(reply, "payload")
		if !ok {
			return fmt.Errorf("auth: scram reply missing payload")
		}

		if done {
			return nil
		}

		clientPayload, err := conv.Step(string(serverPayload))
		if err != nil {
			return fmt.Errorf("auth: scram conversation: %w", err)
		}

		continueBuilder := bsoncore.NewDocumentBuilder()
		continueBuilder.AppendInt32Element("saslContinue", 1)
		continueBuilder.AppendValueElement("conversationId", conversationID)
		continueBuilder.AppendBinaryElement("payload", 0x00, []byte(clientPayload))

		reply, err = runCommand(ctx, rw, cred.Source, continueBuilder)
		if err != nil {
			return err
		}

		if conv.Done() {
			done, _ = lookupBool(reply, "done")
			if !done {
				// server still expects one more empty saslContinue to
				// acknowledge the client's final message.
				emptyBuilder := bsoncore.NewDocumentBuilder()
				emptyBuilder.AppendInt32Element("saslContinue", 1)
				emptyBuilder.AppendValueElement("conversationId", conversationID)
				emptyBuilder.AppendBinaryElement("payload", 0x00, []byte{})
				reply, err = runCommand(ctx, rw, cred.Source, emptyBuilder)
				if err != nil {
					return err
				}
			}
			return nil
		}
	}
}

func lookupBool(doc bsoncore.Document, key string) (bool, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return false, false
	}
	return v.BooleanOK()
}

func lookupBinary(doc bsoncore.Document, key string) ([]byte, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	_, data, ok := v.BinaryOK()
	return data, ok
}
