// Package flowrouter recognizes the game's scene-server flow among the
// host's TCP traffic from fixed signature bytes carried in early packets.
//
// The signature byte sequences below are a data table, the same way the
// GoPacketDecoder's opcode catalogue (decoder/gopacketDecoder.go) is a data
// table owned by the game and not part of this design: they are wired here
// as package variables so a deployment can override them without touching
// the detection logic.
package flowrouter

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"
)

// SigAMagic is the byte sequence ("c3SB??") Sig A expects at offset 5 of
// the first length-prefixed record.
var SigAMagic = []byte{0x00, 0x63, 0x33, 0x53, 0x42, 0x00}

// SigCMagic is the byte sequence Sig C expects at offset 5 of the first
// length-prefixed record of a reverse-direction notify frame.
var SigCMagic = []byte{0x00, 0x06, 0x26, 0xAD, 0x66, 0x00}

// SigBPrefix10 and SigBPrefix6 are the fixed byte prefixes the login-return
// signature (Sig B) checks at offsets [0,10) and [14,20).
var (
	SigBPrefix10 = []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
	SigBPrefix6  = []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15}
)

const sigBLen = 0x62

// firstRecord returns the body (the bytes after the 4-byte length prefix)
// of the first length-prefixed record in buf, following the same
// 4-byte-BE-length framing as the frame package (length includes the
// prefix), or ok=false if buf doesn't contain one complete record.
func firstRecord(buf []byte) (rec []byte, ok bool) {
	if len(buf) < 4 {
		return nil, false
	}

	length := int(binary.BigEndian.Uint32(buf[:4]))
	if length < 4 || length > len(buf) {
		return nil, false
	}

	return buf[4:length], true
}

// MatchSigA reports whether payload is a scene-server signature packet.
func MatchSigA(payload []byte) bool {
	if len(payload) <= 4 || payload[4] != 0x00 {
		return false
	}

	rec, ok := firstRecord(payload)
	if !ok || len(rec) < 5+len(SigAMagic) {
		return false
	}

	return bytes.Equal(rec[5:5+len(SigAMagic)], SigAMagic)
}

// MatchSigB reports whether payload is a login-return signature packet.
func MatchSigB(payload []byte) bool {
	if len(payload) != sigBLen {
		return false
	}

	if !bytes.Equal(payload[0:10], SigBPrefix10) {
		return false
	}

	return bytes.Equal(payload[14:20], SigBPrefix6)
}

// MatchSigC reports whether payload is a reverse-direction framed notify
// signature packet.
func MatchSigC(payload []byte) bool {
	if len(payload) < 6 || payload[4] != 0x00 || payload[5] != 0x05 {
		return false
	}

	rec, ok := firstRecord(payload)
	if !ok || len(rec) < 5+len(SigCMagic) {
		return false
	}

	return bytes.Equal(rec[5:5+len(SigCMagic)], SigCMagic)
}

// Direction is which side of the captured flow carries the scene-server
// traffic.
type Direction int

const (
	Forward Direction = iota // src->dst (Sig A, Sig B)
	Reverse                  // dst->src (Sig C)
)

// Identification is the result of a successful signature match.
type Identification struct {
	Direction Direction
	// InitSeq is the TCP sequence number the reassembler should treat as
	// the initial frontier: seq+len(payload) for Forward, ack for Reverse.
	InitSeq uint32
}

// Identifier tracks whether the active game flow has been confirmed yet.
type Identifier struct {
	confirmed bool
	log       *zap.Logger
}

// New creates an Identifier.
func New(log *zap.Logger) *Identifier {
	if log == nil {
		log = zap.NewNop()
	}

	return &Identifier{log: log.Named("flowrouter")}
}

// Confirmed reports whether the scene-server flow has already been fixed.
func (id *Identifier) Confirmed() bool {
	return id.confirmed
}

// Reset clears the confirmation state, e.g. after an idle-timeout
// invalidation of the underlying TCP reassembler.
func (id *Identifier) Reset() {
	id.confirmed = false
}

// Inspect checks one segment's payload against all three signatures. It
// returns ok=false when nothing matched (the common case for unrelated
// flows; signature matches on packets that fail to parse are silently
// ignored per spec §4.5). Once confirmed, callers should stop calling
// Inspect for this flow until Reset.
func (id *Identifier) Inspect(seq, ack uint32, payload []byte) (Identification, bool) {
	if id.confirmed {
		return Identification{}, false
	}

	if MatchSigA(payload) || MatchSigB(payload) {
		id.confirmed = true
		id.log.Info("scene-server flow identified", zap.String("signature", sigName(payload)))

		return Identification{Direction: Forward, InitSeq: seq + uint32(len(payload))}, true
	}

	if MatchSigC(payload) {
		id.confirmed = true
		id.log.Info("scene-server flow identified", zap.String("signature", "C"))

		return Identification{Direction: Reverse, InitSeq: ack}, true
	}

	return Identification{}, false
}

func sigName(payload []byte) string {
	if MatchSigA(payload) {
		return "A"
	}

	return "B"
}
