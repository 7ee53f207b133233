// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-go-driver-core/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/batchcursor"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/connection"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/driverlegacy"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/readpref"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/session"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/wiremessage"
	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/writeconcern"
)

// legacyMaxWireVersion is the highest maxWireVersion a server may
// advertise while still lacking the insert/update/delete write-command
// protocol; topology.Server exposes the same cutoff as
// SelectOpcodeFamily for callers that only hold a monitored server.
const legacyMaxWireVersion = 0

// WriteKind names which of the three write commands a WriteBatch holds.
type WriteKind uint8

const (
	InsertWrites WriteKind = iota
	UpdateWrites
	DeleteWrites
)

func (k WriteKind) commandName() string {
	switch k {
	case InsertWrites:
		return "insert"
	case UpdateWrites:
		return "update"
	default:
		return "delete"
	}
}

func (k WriteKind) opsFieldName() string {
	switch k {
	case InsertWrites:
		return "documents"
	case UpdateWrites:
		return "updates"
	default:
		return "deletes"
	}
}

// defaultMaxWriteBatchSize and defaultMaxBSONSize are the fallbacks used
// when a server hasn't yet reported its own limits via isMaster:
// typically 1000 ops, plus the 16 MiB document default.
const (
	defaultMaxWriteBatchSize = 1000
	defaultMaxBSONSize       = 16 * 1024 * 1024
	writeCommandOverhead     = 16 * 1024
)

// WriteBatch is a transient, call-frame-owned unit of work: a command
// type, an ordering flag, and the vector of already-encoded per-op
// documents the coordinator packs into one or more wire commands.
type WriteBatch struct {
	Kind                     WriteKind
	Namespace                batchcursor.Namespace
	Ordered                  bool
	BypassDocumentValidation bool
	WriteConcern             *writeconcern.WriteConcern
	Ops                      []bsoncore.Document
}

// UpsertedItem records one upserted document's batch-global index and
// server-assigned _id.
type UpsertedItem struct {
	Index int
	ID    bsoncore.Value
}

// WriteError is one per-op failure reported in a write command reply's
// writeErrors[] array, re-indexed into the caller's global index space.
type WriteError struct {
	Index   int
	Code    int32
	Message string
	Details bsoncore.Document
}

// Canonical maps this error's server code through CanonicalizeCode,
// e.g. to CodeDuplicateKey.
func (we WriteError) Canonical() (Code, bool) {
	return CanonicalizeCode(we.Code)
}

// BulkResult is the aggregate {nInserted, nMatched, nModified, nUpserted,
// nRemoved, upserted[], writeErrors[], writeConcernErrors[]} the
// coordinator reports as its final output.
type BulkResult struct {
	InsertedCount      int64
	MatchedCount       int64
	ModifiedCount      int64
	UpsertedCount      int64
	DeletedCount       int64
	Upserted           []UpsertedItem
	WriteErrors        []WriteError
	WriteConcernErrors []*writeconcern.Error
}

// Coordinator groups WriteBatch.Ops into commands under the server's
// max-BSON-size/max-batch-size limits, dispatches them over one
// selected connection, and merges the per-command replies. It never
// retries on its own; retry-on-network-error is the caller's policy.
type Coordinator struct {
	Deployment Deployment
	Session    *session.Client
	Clock      *session.ClusterClock
}

// Execute runs batch to completion, stopping early for an Ordered batch
// at the first command carrying a per-op writeError.
func (c Coordinator) Execute(ctx context.Context, batch WriteBatch) (*BulkResult, error) {
	if len(batch.Ops) == 0 {
		return nil, InvalidArgument("write coordinator: empty operation list")
	}
	if !writeconcern.AckWrite(batch.WriteConcern) && (batch.BypassDocumentValidation) {
		return nil, InvalidArgument("write coordinator: unacknowledged writes cannot set bypassDocumentValidation")
	}

	conn, desc, err := c.Deployment.SelectServer(ctx, readpref.Selector{IsWrite: true})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	maxDoc := int32(desc.MaxDocumentSize)
	if maxDoc <= 0 {
		maxDoc = defaultMaxBSONSize
	}
	if err := checkOpDocuments(batch, maxDoc); err != nil {
		return nil, err
	}

	if desc.MaxWireVersion <= legacyMaxWireVersion {
		return c.executeLegacy(ctx, conn, batch)
	}

	maxCount := int32(desc.MaxBatchCount)
	if maxCount <= 0 {
		maxCount = defaultMaxWriteBatchSize
	}
	maxBytes := int32(desc.MaxDocumentSize) + writeCommandOverhead
	if desc.MaxDocumentSize == 0 {
		maxBytes = defaultMaxBSONSize + writeCommandOverhead
	}

	chunks := splitWriteBatches(batch.Ops, maxCount, maxBytes)
	ack := writeconcern.AckWrite(batch.WriteConcern)

	result := &BulkResult{}
	offset := 0
	for _, chunk := range chunks {
		cmd, err := buildWriteCommand(batch, chunk)
		if err != nil {
			return result, err
		}
		full := appendDBAndClusterTime(cmd, batch.Namespace.DB, c.Clock)
		msg := wiremessage.Msg{
			MsgHeader: wiremessage.Header{RequestID: wiremessage.NextRequestID()},
			Sections:  []wiremessage.MsgSection{{Kind: wiremessage.MsgSectionBody, Document: full}},
		}

		if err := conn.WriteWireMessage(ctx, &msg); err != nil {
			return result, &Error{Domain: NetworkDomain, Message: "unable to write command", Wrapped: err}
		}

		if !ack {
			offset += len(chunk)
			continue
		}

		reply, err := conn.ReadWireMessage(ctx)
		if err != nil {
			return result, &Error{Domain: NetworkDomain, Message: "unable to read command reply", Wrapped: err}
		}
		body, err := bodyOf(reply)
		if err != nil {
			return result, &Error{Domain: ProtocolDomain, Message: "malformed command reply", Wrapped: err}
		}
		if cmdErr := checkOK(body); cmdErr != nil {
			return result, cmdErr
		}

		stop := mergeWriteReply(result, batch.Kind, body, offset)
		offset += len(chunk)
		if batch.Ordered && stop {
			break
		}
	}
	return result, nil
}

// executeLegacy runs batch over the bare OP_INSERT/OP_UPDATE/OP_DELETE
// opcodes instead of the write-command protocol, for a server whose
// maxWireVersion never implemented insert/update/delete as commands
//. Unlike the command path it has
// no way to batch several ops into one round trip: every update/delete
// model gets its own opcode plus, if acknowledged, its own getLastError.
func (c Coordinator) executeLegacy(ctx context.Context, conn connection.Connection, batch WriteBatch) (*BulkResult, error) {
	ack := writeconcern.AckWrite(batch.WriteConcern)
	result := &BulkResult{}

	switch batch.Kind {
	case InsertWrites:
		n, err := driverlegacy.Execute(ctx, conn, driverlegacy.Write{
			Kind:                     driverlegacy.LegacyInsert,
			Namespace:                batch.Namespace,
			Documents:                batch.Ops,
			WriteConcern:             batch.WriteConcern,
			BypassDocumentValidation: batch.BypassDocumentValidation,
		})
		result.InsertedCount += n
		if err != nil {
			if wcErr, ok := err.(*writeconcern.Error); ok {
				result.WriteConcernErrors = append(result.WriteConcernErrors, wcErr)
				return result, nil
			}
			return result, &Error{Domain: NetworkDomain, Message: "legacy insert failed", Wrapped: err}
		}
		return result, nil

	case UpdateWrites:
		for i, op := range batch.Ops {
			selector, update, upsert, multi, err := decodeUpdateOp(op)
			if err != nil {
				return result, err
			}
			n, err := driverlegacy.Execute(ctx, conn, driverlegacy.Write{
				Kind:                     driverlegacy.LegacyUpdate,
				Namespace:                batch.Namespace,
				Selector:                 selector,
				Update:                   update,
				Upsert:                   upsert,
				Multi:                    multi,
				WriteConcern:             batch.WriteConcern,
				BypassDocumentValidation: batch.BypassDocumentValidation,
			})
			if !ack {
				continue
			}
			if err != nil {
				if stop := mergeLegacyWriteError(result, i, err, batch.Ordered); stop {
					return result, nil
				}
				continue
			}
			if upsert && n > 0 {
				result.UpsertedCount++
			} else {
				result.MatchedCount += n
			}
		}
		return result, nil

	case DeleteWrites:
		for i, op := range batch.Ops {
			selector, limit, err := decodeDeleteOp(op)
			if err != nil {
				return result, err
			}
			n, err := driverlegacy.Execute(ctx, conn, driverlegacy.Write{
				Kind:         driverlegacy.LegacyDelete,
				Namespace:    batch.Namespace,
				Selector:     selector,
				SingleRemove: limit == 1,
				WriteConcern: batch.WriteConcern,
			})
			if !ack {
				continue
			}
			if err != nil {
				if stop := mergeLegacyWriteError(result, i, err, batch.Ordered); stop {
					return result, nil
				}
				continue
			}
			result.DeletedCount += n
		}
		return result, nil
	}
	return result, nil
}

// mergeLegacyWriteError folds one op's getLastError failure into result,
// reporting whether an Ordered batch should stop, ported to the legacy
// per-op round trip.
func mergeLegacyWriteError(result *BulkResult, index int, err error, ordered bool) bool {
	if wcErr, ok := err.(*writeconcern.Error); ok {
		result.WriteConcernErrors = append(result.WriteConcernErrors, wcErr)
		return false
	}
	result.WriteErrors = append(result.WriteErrors, WriteError{Index: index, Message: err.Error()})
	return ordered
}

// decodeUpdateOp reverses BuildUpdateOp's {q, u, upsert, multi} shape,
// the format operation.Update hands the coordinator regardless of which
// opcode family ends up dispatching it.
func decodeUpdateOp(op bsoncore.Document) (selector, update bsoncore.Document, upsert, multi bool, err error) {
	q, err := op.LookupErr("q")
	if err != nil {
		return nil, nil, false, false, err
	}
	u, err := op.LookupErr("u")
	if err != nil {
		return nil, nil, false, false, err
	}
	if v, lookupErr := op.LookupErr("upsert"); lookupErr == nil {
		upsert, _ = v.BooleanOK()
	}
	if v, lookupErr := op.LookupErr("multi"); lookupErr == nil {
		multi, _ = v.BooleanOK()
	}
	return q.Document(), u.Document(), upsert, multi, nil
}

// decodeDeleteOp reverses BuildDeleteOp's {q, limit} shape.
func decodeDeleteOp(op bsoncore.Document) (selector bsoncore.Document, limit int32, err error) {
	q, err := op.LookupErr("q")
	if err != nil {
		return nil, 0, err
	}
	l, err := op.LookupErr("limit")
	if err != nil {
		return nil, 0, err
	}
	limit = l.Int32()
	return q.Document(), limit, nil
}

// checkOpDocuments runs every pre-I/O document check, so a bad document
// fails before a single byte reaches the socket: each op must fit the
// negotiated maxBsonObjectSize, every key at every depth must be
// well-formed UTF-8, and an unacknowledged batch must not carry
// '$'-initial or dotted keys in its inserted documents or in an
// update-as-replacement document (w:0 reads no reply, so the server
// could never report the rejection back).
func checkOpDocuments(batch WriteBatch, maxDoc int32) error {
	ack := writeconcern.AckWrite(batch.WriteConcern)
	for i, op := range batch.Ops {
		if op.Len() > maxDoc {
			return &Error{
				Domain:  BsonDomain,
				Code:    CodeBsonTooLarge,
				Message: fmt.Sprintf("document at index %d is %d bytes, exceeding the %d byte limit", i, op.Len(), maxDoc),
			}
		}
		if !validUTF8Keys(op) {
			return &Error{
				Domain:  BsonDomain,
				Code:    CodeNotUTF8,
				Message: fmt.Sprintf("document at index %d contains a key that is not valid UTF-8", i),
			}
		}
		if ack {
			continue
		}
		switch batch.Kind {
		case InsertWrites:
			if key, bad := bannedTopLevelKey(op); bad {
				return &Error{
					Domain:  BsonDomain,
					Code:    CodeInvalidArg,
					Message: fmt.Sprintf("unacknowledged insert at index %d has invalid key %q", i, key),
				}
			}
		case UpdateWrites:
			uVal, err := op.LookupErr("u")
			if err != nil {
				continue
			}
			u, ok := uVal.DocumentOK()
			if !ok {
				continue
			}
			if isReplacement(u) {
				if key, bad := bannedTopLevelKey(u); bad {
					return &Error{
						Domain:  BsonDomain,
						Code:    CodeInvalidArg,
						Message: fmt.Sprintf("unacknowledged replacement at index %d has invalid key %q", i, key),
					}
				}
			}
		}
	}
	return nil
}

// validUTF8Keys reports whether every key in doc, at every nesting
// depth, is well-formed UTF-8.
func validUTF8Keys(doc bsoncore.Document) bool {
	iter, err := doc.Iterator()
	if err != nil {
		return true // structural problems surface elsewhere
	}
	for iter.Next() {
		e := iter.Element()
		if !utf8.Valid(e.KeyBytes()) {
			return false
		}
		switch v := e.Value(); v.Type {
		case bsoncore.TypeEmbeddedDocument:
			if !validUTF8Keys(v.Document()) {
				return false
			}
		case bsoncore.TypeArray:
			if !validUTF8Keys(bsoncore.Document(v.Array())) {
				return false
			}
		}
	}
	return true
}

// bannedTopLevelKey returns the first top-level key of doc that contains
// a '.' or begins with '$'.
func bannedTopLevelKey(doc bsoncore.Document) (string, bool) {
	iter, err := doc.Iterator()
	if err != nil {
		return "", false
	}
	for iter.Next() {
		key := iter.Element().Key()
		if strings.Contains(key, ".") || strings.HasPrefix(key, "$") {
			return key, true
		}
	}
	return "", false
}

// isReplacement reports whether an update document is a whole-document
// replacement rather than a modifier document: modifiers lead with a
// '$'-operator key.
func isReplacement(u bsoncore.Document) bool {
	iter, err := u.Iterator()
	if err != nil || !iter.Next() {
		return false
	}
	return !strings.HasPrefix(iter.Element().Key(), "$")
}

// splitWriteBatches greedily packs ops under the per-command op-count
// and byte-size caps: when the next operation would overflow either
// limit it closes the current batch.
func splitWriteBatches(ops []bsoncore.Document, maxCount, maxBytes int32) [][]bsoncore.Document {
	var batches [][]bsoncore.Document
	var cur []bsoncore.Document
	var curBytes int32

	for _, op := range ops {
		opLen := op.Len()
		if len(cur) > 0 && (int32(len(cur)) >= maxCount || curBytes+opLen > maxBytes) {
			batches = append(batches, cur)
			cur = nil
			curBytes = 0
		}
		cur = append(cur, op)
		curBytes += opLen
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func buildWriteCommand(batch WriteBatch, ops []bsoncore.Document) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if err := b.AppendStringElement(batch.Kind.commandName(), batch.Namespace.Collection); err != nil {
		return nil, err
	}
	if err := b.StartArray(batch.Kind.opsFieldName()); err != nil {
		return nil, err
	}
	for i, op := range ops {
		if err := b.AppendDocumentElement(strconv.Itoa(i), op); err != nil {
			return nil, err
		}
	}
	if err := b.FinishArray(); err != nil {
		return nil, err
	}
	if err := b.AppendBooleanElement("ordered", batch.Ordered); err != nil {
		return nil, err
	}
	if batch.BypassDocumentValidation {
		if err := b.AppendBooleanElement("bypassDocumentValidation", true); err != nil {
			return nil, err
		}
	}
	if batch.WriteConcern != nil {
		if err := batch.WriteConcern.AppendElement(b, "writeConcern"); err != nil {
			return nil, err
		}
	}
	doc, _, err := b.Finish()
	return doc, err
}

func appendDBAndClusterTime(cmd bsoncore.Document, db string, clock *session.ClusterClock) bsoncore.Document {
	b := bsoncore.NewDocumentBuilder()
	elems, _ := cmd.Elements()
	for _, e := range elems {
		b.AppendValueElement(e.Key(), e.Value())
	}
	b.AppendStringElement("$db", db)
	if clock != nil {
		if ct := clock.GetClusterTime(); ct != nil {
			b.AppendDocumentElement("$clusterTime", ct)
		}
	}
	out, _, _ := b.Finish()
	return out
}

// mergeWriteReply folds one command reply into result, re-indexing
// writeErrors[]/upserted[] by offset, and reports whether
// this reply carried a per-op error (the ordered-batch stop signal).
func mergeWriteReply(result *BulkResult, kind WriteKind, body bsoncore.Document, offset int) bool {
	n := int64(0)
	if v, err := body.LookupErr("n"); err == nil {
		if iv, ok := v.AsInt64(); ok {
			n = iv
		}
	}

	var upserted []UpsertedItem
	if v, err := body.LookupErr("upserted"); err == nil {
		if arr, ok := v.ArrayOK(); ok {
			values, _ := arr.Values()
			for _, uv := range values {
				udoc, ok := uv.DocumentOK()
				if !ok {
					continue
				}
				idx := 0
				if iv, err := udoc.LookupErr("index"); err == nil {
					if n, ok := iv.AsInt64(); ok {
						idx = int(n)
					}
				}
				var id bsoncore.Value
				if iv, err := udoc.LookupErr("_id"); err == nil {
					id = iv
				}
				upserted = append(upserted, UpsertedItem{Index: offset + idx, ID: id})
			}
		}
	}

	switch kind {
	case InsertWrites:
		result.InsertedCount += n
	case DeleteWrites:
		result.DeletedCount += n
	case UpdateWrites:
		result.MatchedCount += n - int64(len(upserted))
		result.UpsertedCount += int64(len(upserted))
		if v, err := body.LookupErr("nModified"); err == nil {
			if nm, ok := v.AsInt64(); ok {
				result.ModifiedCount += nm
			}
		}
	}
	result.Upserted = append(result.Upserted, upserted...)

	hadWriteError := false
	if v, err := body.LookupErr("writeErrors"); err == nil {
		if arr, ok := v.ArrayOK(); ok {
			values, _ := arr.Values()
			for _, ev := range values {
				edoc, ok := ev.DocumentOK()
				if !ok {
					continue
				}
				we := WriteError{}
				if iv, err := edoc.LookupErr("index"); err == nil {
					if n, ok := iv.AsInt64(); ok {
						we.Index = offset + int(n)
					}
				}
				if cv, err := edoc.LookupErr("code"); err == nil {
					if n, ok := cv.AsInt64(); ok {
						we.Code = int32(n)
					}
				}
				if mv, err := edoc.LookupErr("errmsg"); err == nil {
					we.Message, _ = mv.StringValueOK()
				}
				result.WriteErrors = append(result.WriteErrors, we)
				hadWriteError = true
			}
		}
	}

	if v, err := body.LookupErr("writeConcernError"); err == nil {
		if wdoc, ok := v.DocumentOK(); ok {
			wce := &writeconcern.Error{}
			if cv, err := wdoc.LookupErr("code"); err == nil {
				if n, ok := cv.AsInt64(); ok {
					wce.Code = int32(n)
				}
			}
			if mv, err := wdoc.LookupErr("errmsg"); err == nil {
				wce.Message, _ = mv.StringValueOK()
			}
			result.WriteConcernErrors = append(result.WriteConcernErrors, wce)
		}
	}

	return hadWriteError
}
