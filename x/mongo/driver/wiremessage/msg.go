// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

// MsgSection is one section of a modern OP_MSG body: a kind-0 "body"
// section carrying a single document, or a kind-1 "sequence" section
// carrying an identifier plus zero or more documents.
type MsgSection struct {
	Kind         MsgSectionKind
	Identifier   string   // only meaningful for MsgSectionSequence
	Document     []byte   // only meaningful for MsgSectionBody
	Documents    [][]byte // only meaningful for MsgSectionSequence
}

// Msg is the body of a modern OP_MSG message: flags:u32,
// sections:[type(0=body,1=sequence)...]. The legacy
// "cstring msg" layout predates sections entirely and is not produced by
// this driver's operations; AppendWireMessage writes it when LegacyText
// is set, and UnmarshalWireMessage never decodes it.
type Msg struct {
	MsgHeader  Header
	FlagBits   MsgFlag
	Sections   []MsgSection
	LegacyText string // encoded in place of Sections when non-empty; never set by UnmarshalWireMessage
}

func (m Msg) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	m.MsgHeader.OpCode = OpMsg
	dst = m.MsgHeader.AppendHeader(dst)
	dst = appendu32(dst, uint32(m.FlagBits))

	if m.LegacyText != "" {
		dst = appendCString(dst, m.LegacyText)
	} else {
		for _, s := range m.Sections {
			dst = append(dst, byte(s.Kind))
			switch s.Kind {
			case MsgSectionBody:
				dst = append(dst, s.Document...)
			case MsgSectionSequence:
				seqStart := len(dst)
				dst = appendi32(dst, 0)
				dst = appendCString(dst, s.Identifier)
				for _, d := range s.Documents {
					dst = append(dst, d...)
				}
				SetMessageLength(dst[seqStart:], int32(len(dst)-seqStart))
			}
		}
	}

	if m.FlagBits&MsgChecksumPresent != 0 {
		dst = appendu32(dst, crc32Checksum(dst[start+HeaderLen:]))
	}

	SetMessageLength(dst[start:], int32(len(dst)-start))
	return dst, validateLength(int32(len(dst) - start))
}

func appendu32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readu32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// crc32Checksum is a placeholder hook: the core only ever sends
// checksum-less OP_MSG frames (MsgChecksumPresent is never set by this
// driver's own operations). It exists so the flag, if ever set by a
// caller constructing a raw Msg, round-trips structurally rather than
// silently corrupting the frame.
func crc32Checksum([]byte) uint32 { return 0 }

func (m *Msg) UnmarshalWireMessage(src []byte) error {
	hdr, err := ReadHeader(src, 0)
	if err != nil {
		return err
	}
	if err := validateLength(hdr.MessageLength); err != nil {
		return err
	}
	m.MsgHeader = hdr
	rest := src[HeaderLen:hdr.MessageLength]

	if len(rest) < 4 {
		return ProtocolError{Message: "truncated OP_MSG flags"}
	}
	m.FlagBits = MsgFlag(readu32(rest[:4]))
	rest = rest[4:]

	if m.FlagBits&MsgChecksumPresent != 0 {
		if len(rest) < 4 {
			return ProtocolError{Message: "truncated OP_MSG checksum"}
		}
		rest = rest[:len(rest)-4]
	}

	m.Sections = m.Sections[:0]
	for len(rest) > 0 {
		kind := MsgSectionKind(rest[0])
		rest = rest[1:]
		switch kind {
		case MsgSectionBody:
			doc, rem, ok := readDocument(rest)
			if !ok {
				return ProtocolError{Message: "truncated OP_MSG body section"}
			}
			m.Sections = append(m.Sections, MsgSection{Kind: MsgSectionBody, Document: doc})
			rest = rem
		case MsgSectionSequence:
			if len(rest) < 4 {
				return ProtocolError{Message: "truncated OP_MSG sequence length"}
			}
			seqLen := readi32(rest[:4])
			if int(seqLen) > len(rest) || seqLen < 4 {
				return ProtocolError{Message: "invalid OP_MSG sequence length"}
			}
			seq := rest[4:seqLen]
			rest = rest[seqLen:]

			id, rem, ok := readCString(seq)
			if !ok {
				return ProtocolError{Message: "truncated OP_MSG sequence identifier"}
			}
			var docs [][]byte
			for len(rem) > 0 {
				doc, next, ok := readDocument(rem)
				if !ok {
					return ProtocolError{Message: "truncated OP_MSG sequence document"}
				}
				docs = append(docs, doc)
				rem = next
			}
			m.Sections = append(m.Sections, MsgSection{Kind: MsgSectionSequence, Identifier: id, Documents: docs})
		default:
			return ProtocolError{Message: "unknown OP_MSG section kind"}
		}
	}
	return nil
}
