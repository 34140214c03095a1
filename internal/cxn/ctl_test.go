package cxn

import (
	"testing"

	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fabric/loopback"
	"github.com/momentics/fxfer/internal/wire"
)

func pollOne(t *testing.T, ep fabric.Endpoint) fabric.Completion {
	t.Helper()
	var out [1]fabric.Completion
	n, err := ep.CQ().Poll(out[:])
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("poll returned %d completions, want 1", n)
	}
	return out[0]
}

func TestRxCtlPostComplete(t *testing.T) {
	epA, epB := loopback.Pair(loopback.DefaultConfig())

	rc := NewRxCtl[*buffer.Progress](4)
	pb := buffer.NewProgress()
	if err := rc.Post(epA, pb.Raw, pb); err != nil {
		t.Fatalf("post: %v", err)
	}
	if rc.Posted.Len() != 1 {
		t.Fatalf("posted len = %d, want 1", rc.Posted.Len())
	}

	msg := wire.Progress{NFilled: 7, NLeftover: 1}
	raw := make([]byte, wire.ProgressWireSize)
	_ = wire.EncodeProgress(raw, &msg)
	if err := epB.Send(epA, raw, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	cmpl := pollOne(t, epA)

	got, err := rc.Complete(cmpl)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != pb {
		t.Fatalf("complete returned a different buffer")
	}
	if got.NUsed != wire.ProgressWireSize {
		t.Fatalf("NUsed = %d, want %d", got.NUsed, wire.ProgressWireSize)
	}
	if rc.Posted.Len() != 0 {
		t.Fatalf("posted should be drained, len = %d", rc.Posted.Len())
	}
}

func TestRxCtlCompleteWithNothingPostedErrors(t *testing.T) {
	rc := NewRxCtl[*buffer.Progress](4)
	_, err := rc.Complete(fabric.Completion{})
	if err == nil {
		t.Fatalf("expected error when no receive was posted")
	}
}

func TestRxCtlCompleteMismatchedContextErrors(t *testing.T) {
	epA, _ := loopback.Pair(loopback.DefaultConfig())
	rc := NewRxCtl[*buffer.Progress](4)
	pb := buffer.NewProgress()
	if err := rc.Post(epA, pb.Raw, pb); err != nil {
		t.Fatalf("post: %v", err)
	}
	_, err := rc.Complete(fabric.Completion{Ctx: &buffer.Header{}})
	if err == nil {
		t.Fatalf("expected error on mismatched completion context")
	}
}

func TestTxCtlTransmitAndComplete(t *testing.T) {
	epA, epB := loopback.Pair(loopback.DefaultConfig())
	peerForA, _ := epA.AddressVectorInsert(nil)

	tc := NewTxCtl[*buffer.Vector](4)
	vb := buffer.NewVector()
	vb.Msg.NIovs = 0
	vb.NUsed = 8
	tc.Ready.Put(vb)

	encode := func(v *buffer.Vector) []byte {
		_ = wire.EncodeVector(v.Raw, &v.Msg)
		return v.Raw[:v.NUsed]
	}

	if err := tc.Transmit(epA, peerForA, encode); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if tc.Ready.Len() != 0 || tc.Posted.Len() != 1 {
		t.Fatalf("ready=%d posted=%d, want 0/1", tc.Ready.Len(), tc.Posted.Len())
	}

	cmpl := pollOne(t, epA)
	if err := tc.Complete(cmpl); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tc.Posted.Len() != 0 {
		t.Fatalf("posted should be drained, len = %d", tc.Posted.Len())
	}
	if tc.Pool.Len() != 1 {
		t.Fatalf("pool len = %d, want 1 (recycled buffer)", tc.Pool.Len())
	}

	// the receiving side should have the encoded bytes in its inbox/CQ.
	var recvBuf [wire.VectorWireSize]byte
	if err := epB.Recv(recvBuf[:], nil); err != nil {
		t.Fatalf("recv: %v", err)
	}
	rc := pollOne(t, epB)
	if rc.Len != 8 {
		t.Fatalf("received len = %d, want 8", rc.Len)
	}
}

func TestTxCtlCompleteMismatchErrors(t *testing.T) {
	tc := NewTxCtl[*buffer.Vector](4)
	vb := buffer.NewVector()
	tc.Posted.Put(vb)
	if err := tc.Complete(fabric.Completion{Ctx: &buffer.Header{}}); err == nil {
		t.Fatalf("expected error on mismatched completion context")
	}
}
