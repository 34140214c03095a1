package wire

import "testing"

func TestInitialRoundTrip(t *testing.T) {
	m := Initial{NSources: 3, ID: 7}
	m.Nonce[0], m.Nonce[1] = 0xdead, 0xbeef
	m.AddrLen = 5
	copy(m.Addr[:], []byte("abcde"))

	buf := make([]byte, InitialWireSize)
	if err := EncodeInitial(buf, &m); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got Initial
	if err := DecodeInitial(buf, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Nonce != m.Nonce || got.NSources != m.NSources || got.ID != m.ID || got.AddrLen != m.AddrLen {
		t.Fatalf("got %+v, want %+v", got, m)
	}
	if string(got.Addr[:got.AddrLen]) != "abcde" {
		t.Fatalf("addr = %q", got.Addr[:got.AddrLen])
	}
}

func TestDecodeInitialTruncated(t *testing.T) {
	if err := DecodeInitial(make([]byte, InitialWireSize-1), &Initial{}); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestDecodeInitialRejectsOversizeAddrLen(t *testing.T) {
	buf := make([]byte, InitialWireSize)
	m := Initial{AddrLen: MaxAddr + 1}
	// EncodeInitial doesn't validate AddrLen itself; write it directly to
	// exercise DecodeInitial's own bound check.
	_ = EncodeInitial(buf, &m)
	if err := DecodeInitial(buf, &Initial{}); err == nil {
		t.Fatalf("expected error for AddrLen exceeding MaxAddr")
	}
}

func TestAckRoundTrip(t *testing.T) {
	m := Ack{AddrLen: 3}
	copy(m.Addr[:], []byte("xyz"))
	buf := make([]byte, AckWireSize)
	if err := EncodeAck(buf, &m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got Ack
	if err := DecodeAck(buf, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AddrLen != 3 || string(got.Addr[:3]) != "xyz" {
		t.Fatalf("got %+v", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	m := Vector{NIovs: 2}
	m.Iov[0] = IovTriple{Addr: 10, Len: 20, Key: 30}
	m.Iov[1] = IovTriple{Addr: 40, Len: 50, Key: 60}

	buf := make([]byte, VectorWireSize)
	if err := EncodeVector(buf, &m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got Vector
	if err := DecodeVector(buf, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NIovs != 2 || got.Iov[0] != m.Iov[0] || got.Iov[1] != m.Iov[1] {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestDecodeVectorRejectsOversizeNIovs(t *testing.T) {
	buf := make([]byte, VectorWireSize)
	m := Vector{NIovs: MaxIovs + 1}
	_ = EncodeVector(buf, &m)
	if err := DecodeVector(buf, &Vector{}); err == nil {
		t.Fatalf("expected error for NIovs exceeding MaxIovs")
	}
}

func TestProgressRoundTrip(t *testing.T) {
	m := Progress{NFilled: 123, NLeftover: 1}
	buf := make([]byte, ProgressWireSize)
	if err := EncodeProgress(buf, &m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got Progress
	if err := DecodeProgress(buf, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestEncodeTooSmallBufferErrors(t *testing.T) {
	if err := EncodeInitial(make([]byte, 1), &Initial{}); err == nil {
		t.Fatalf("expected error for undersized initial buffer")
	}
	if err := EncodeAck(make([]byte, 1), &Ack{}); err == nil {
		t.Fatalf("expected error for undersized ack buffer")
	}
	if err := EncodeVector(make([]byte, 1), &Vector{}); err == nil {
		t.Fatalf("expected error for undersized vector buffer")
	}
	if err := EncodeProgress(make([]byte, 1), &Progress{}); err == nil {
		t.Fatalf("expected error for undersized progress buffer")
	}
}
