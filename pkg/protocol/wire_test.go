package protocol

import "testing"

func TestMessageRoundtrip(t *testing.T) {
	m := NewHandshake()
	b := EncodeMessage(m)
	if len(b) != calcMessageSize {
		t.Fatalf("encoded message size = %d", len(b))
	}
	m2, err := DecodeMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m2 != m {
		t.Fatalf("messages differ: %#v vs %#v", m2, m)
	}
}

func TestDecodeMessageWrongLength(t *testing.T) {
	if _, err := DecodeMessage(make([]byte, 11)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
	if _, err := DecodeMessage(make([]byte, 13)); err == nil {
		t.Fatalf("expected error for long buffer")
	}
}

func TestProtocolRoundtrip(t *testing.T) {
	p := CalcProtocol{
		Type: RecordTypeTask, MajorVersion: 1, MinorVersion: 1,
		ID: 0x0000002A, Op: OpAdd, V1: 3, V2: 4, Result: 0,
	}
	b := EncodeProtocol(p)
	if len(b) != calcProtocolSize {
		t.Fatalf("encoded protocol size = %d", len(b))
	}
	p2, err := DecodeProtocol(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p2 != p {
		t.Fatalf("protocols differ: %#v vs %#v", p2, p)
	}
}

func TestDecodeProtocolWrongLength(t *testing.T) {
	if _, err := DecodeProtocol(make([]byte, 25)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestBigEndianFieldOrder(t *testing.T) {
	// Scenario B1 from the spec: the encoded task bytes must exactly match
	// the documented big-endian layout.
	b := EncodeTask(0x0000002A, OpAdd, 3, 4)
	want := []byte{
		0x00, 0x01, // type = 1 (task)
		0x00, 0x01, // major = 1
		0x00, 0x01, // minor = 1
		0x00, 0x00, 0x00, 0x2A, // id
		0x00, 0x00, 0x00, 0x01, // op = ADD
		0x00, 0x00, 0x00, 0x03, // v1 = 3
		0x00, 0x00, 0x00, 0x04, // v2 = 4
		0x00, 0x00, 0x00, 0x00, // result = 0
	}
	if len(b) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(b), len(want))
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, b[i], want[i])
		}
	}
}

func TestIsZero(t *testing.T) {
	var p CalcProtocol
	if !p.IsZero() {
		t.Fatalf("expected zero-value CalcProtocol to be IsZero")
	}
	p.ID = 1
	if p.IsZero() {
		t.Fatalf("expected non-zero CalcProtocol to not be IsZero")
	}
}

func TestIsHandshake(t *testing.T) {
	if !NewHandshake().IsHandshake() {
		t.Fatalf("expected canonical handshake to be recognized")
	}
	bad := NewHandshake()
	bad.Protocol = 0
	if bad.IsHandshake() {
		t.Fatalf("expected bad protocol id to fail IsHandshake")
	}
}
