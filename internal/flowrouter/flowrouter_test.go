package flowrouter

import "testing"

func buildSigARecord() []byte {
	// 4-byte length prefix (counting itself) followed by a record body
	// whose first byte (payload offset 4) is zero and which carries
	// SigAMagic at body offset 5.
	rec := make([]byte, 5+len(SigAMagic))
	copy(rec[5:], SigAMagic)

	out := make([]byte, 4)
	total := len(rec) + 4
	out[0] = byte(total >> 24)
	out[1] = byte(total >> 16)
	out[2] = byte(total >> 8)
	out[3] = byte(total)

	return append(out, rec...)
}

func TestMatchSigA(t *testing.T) {
	payload := buildSigARecord()

	if !MatchSigA(payload) {
		t.Fatal("expected signature A to match a well-formed record")
	}

	corrupted := append([]byte{}, payload...)
	corrupted[len(corrupted)-1] ^= 0xFF

	if MatchSigA(corrupted) {
		t.Fatal("corrupted magic bytes must not match")
	}
}

func TestMatchSigB(t *testing.T) {
	payload := make([]byte, sigBLen)
	copy(payload[0:10], SigBPrefix10)
	copy(payload[14:20], SigBPrefix6)

	if !MatchSigB(payload) {
		t.Fatal("expected signature B to match a well-formed record")
	}

	if MatchSigB(payload[:sigBLen-1]) {
		t.Fatal("wrong-length payload must not match signature B")
	}
}

func TestMatchSigC(t *testing.T) {
	// payload bytes [4,6) = 00 05; SigCMagic at body offset 5.
	rec := make([]byte, 5+len(SigCMagic))
	rec[1] = 0x05
	copy(rec[5:], SigCMagic)

	out := make([]byte, 4)
	total := len(rec) + 4
	out[0] = byte(total >> 24)
	out[1] = byte(total >> 16)
	out[2] = byte(total >> 8)
	out[3] = byte(total)

	payload := append(out, rec...)

	if !MatchSigC(payload) {
		t.Fatal("expected signature C to match a well-formed record")
	}
}

func TestIdentifier_InspectAndConfirm(t *testing.T) {
	id := New(nil)

	if id.Confirmed() {
		t.Fatal("a fresh Identifier must not be confirmed")
	}

	payload := buildSigARecord()

	ident, ok := id.Inspect(1000, 0, payload)
	if !ok {
		t.Fatal("expected signature A to confirm the flow")
	}

	if ident.Direction != Forward {
		t.Fatalf("Direction = %v, want Forward", ident.Direction)
	}

	wantSeq := uint32(1000) + uint32(len(payload))
	if ident.InitSeq != wantSeq {
		t.Fatalf("InitSeq = %d, want %d", ident.InitSeq, wantSeq)
	}

	if !id.Confirmed() {
		t.Fatal("Identifier should be confirmed after a successful match")
	}

	// once confirmed, further Inspect calls must be no-ops.
	if _, ok := id.Inspect(2000, 0, payload); ok {
		t.Fatal("Inspect must not re-match once already confirmed")
	}

	id.Reset()

	if id.Confirmed() {
		t.Fatal("Reset must clear confirmation state")
	}
}

func TestIdentifier_ReverseDirectionUsesAck(t *testing.T) {
	id := New(nil)

	rec := make([]byte, 5+len(SigCMagic))
	rec[1] = 0x05
	copy(rec[5:], SigCMagic)

	out := make([]byte, 4)
	total := len(rec) + 4
	out[0] = byte(total >> 24)
	out[1] = byte(total >> 16)
	out[2] = byte(total >> 8)
	out[3] = byte(total)

	payload := append(out, rec...)

	ident, ok := id.Inspect(0, 5555, payload)
	if !ok {
		t.Fatal("expected signature C to confirm the flow")
	}

	if ident.Direction != Reverse {
		t.Fatalf("Direction = %v, want Reverse", ident.Direction)
	}

	if ident.InitSeq != 5555 {
		t.Fatalf("InitSeq = %d, want the segment's ack (5555)", ident.InitSeq)
	}
}

func TestInspect_NoMatch(t *testing.T) {
	id := New(nil)

	_, ok := id.Inspect(0, 0, []byte("not a signature"))
	if ok {
		t.Fatal("expected no match for unrelated payload")
	}

	if id.Confirmed() {
		t.Fatal("an unmatched Inspect must not confirm the flow")
	}
}
