// Package wire implements the on-the-wire message formats exchanged between
// sender and receiver (spec section 6: initial, ack, vector, progress).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxAddr is the maximum length of a serialized fabric address.
	MaxAddr = 512
	// MaxIovs is the maximum number of scatter-gather segments a single
	// vector message may advertise.
	MaxIovs = 12
)

// Nonce is a reserved 128-bit identifier. The current protocol never writes
// or checks it; any nonzero value observed on the wire is reserved and
// ignored (spec Open Questions).
type Nonce [2]uint64

// Initial is the sender->receiver handshake message.
type Initial struct {
	Nonce    Nonce
	NSources uint32
	ID       uint32
	AddrLen  uint32
	Addr     [MaxAddr]byte
}

// Ack is the receiver->sender handshake reply.
type Ack struct {
	AddrLen uint32
	Addr    [MaxAddr]byte
}

// IovTriple is one remote scatter-gather segment: a logical offset into a
// registration, a length, and the registration key that makes the offset
// meaningful.
type IovTriple struct {
	Addr uint64
	Len  uint64
	Key  uint64
}

// Vector is the receiver->sender RDMA target advertisement. NIovs == 0 means
// end of stream: no more buffers are coming.
type Vector struct {
	NIovs uint32
	_pad  uint32
	Iov   [MaxIovs]IovTriple
}

// Progress is the sender->receiver write-completion accounting message.
// NLeftover != 0 means more data follows; 0 means no more bytes will be
// written (local EOF).
type Progress struct {
	NFilled   uint64
	NLeftover uint64
}

// Sizes of the fixed-size wire encodings, per spec section 6.
const (
	InitialWireSize  = 16 + 4 + 4 + 4 + MaxAddr
	AckWireSize      = 4 + MaxAddr
	VectorWireSize   = 4 + 4 + MaxIovs*24
	ProgressWireSize = 16
)

// EncodeInitial serializes m into buf (little-endian), which must be at
// least InitialWireSize bytes.
func EncodeInitial(buf []byte, m *Initial) error {
	if len(buf) < InitialWireSize {
		return fmt.Errorf("wire: initial buffer too small: %d < %d", len(buf), InitialWireSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], m.Nonce[0])
	binary.LittleEndian.PutUint64(buf[8:16], m.Nonce[1])
	binary.LittleEndian.PutUint32(buf[16:20], m.NSources)
	binary.LittleEndian.PutUint32(buf[20:24], m.ID)
	binary.LittleEndian.PutUint32(buf[24:28], m.AddrLen)
	copy(buf[28:28+MaxAddr], m.Addr[:])
	return nil
}

// DecodeInitial parses buf into m. Returns an error if buf is truncated or
// the embedded address length exceeds MaxAddr (malformed message, spec §7
// Protocol errors).
func DecodeInitial(buf []byte, m *Initial) error {
	if len(buf) < InitialWireSize {
		return fmt.Errorf("wire: initial message truncated: %d < %d", len(buf), InitialWireSize)
	}
	m.Nonce[0] = binary.LittleEndian.Uint64(buf[0:8])
	m.Nonce[1] = binary.LittleEndian.Uint64(buf[8:16])
	m.NSources = binary.LittleEndian.Uint32(buf[16:20])
	m.ID = binary.LittleEndian.Uint32(buf[20:24])
	m.AddrLen = binary.LittleEndian.Uint32(buf[24:28])
	if m.AddrLen > MaxAddr {
		return fmt.Errorf("wire: initial addrlen %d exceeds %d", m.AddrLen, MaxAddr)
	}
	copy(m.Addr[:], buf[28:28+MaxAddr])
	return nil
}

// EncodeAck serializes m into buf.
func EncodeAck(buf []byte, m *Ack) error {
	if len(buf) < AckWireSize {
		return fmt.Errorf("wire: ack buffer too small: %d < %d", len(buf), AckWireSize)
	}
	binary.LittleEndian.PutUint32(buf[0:4], m.AddrLen)
	copy(buf[4:4+MaxAddr], m.Addr[:])
	return nil
}

// DecodeAck parses buf into m.
func DecodeAck(buf []byte, m *Ack) error {
	if len(buf) < AckWireSize {
		return fmt.Errorf("wire: ack message truncated: %d < %d", len(buf), AckWireSize)
	}
	m.AddrLen = binary.LittleEndian.Uint32(buf[0:4])
	if m.AddrLen > MaxAddr {
		return fmt.Errorf("wire: ack addrlen %d exceeds %d", m.AddrLen, MaxAddr)
	}
	copy(m.Addr[:], buf[4:4+MaxAddr])
	return nil
}

// EncodeVector serializes m into buf.
func EncodeVector(buf []byte, m *Vector) error {
	if len(buf) < VectorWireSize {
		return fmt.Errorf("wire: vector buffer too small: %d < %d", len(buf), VectorWireSize)
	}
	binary.LittleEndian.PutUint32(buf[0:4], m.NIovs)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	off := 8
	for i := 0; i < MaxIovs; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], m.Iov[i].Addr)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], m.Iov[i].Len)
		binary.LittleEndian.PutUint64(buf[off+16:off+24], m.Iov[i].Key)
		off += 24
	}
	return nil
}

// DecodeVector parses buf into m. A malformed niovs (> MaxIovs) is a
// protocol error per spec §7.
func DecodeVector(buf []byte, m *Vector) error {
	if len(buf) < VectorWireSize {
		return fmt.Errorf("wire: vector message truncated: %d < %d", len(buf), VectorWireSize)
	}
	m.NIovs = binary.LittleEndian.Uint32(buf[0:4])
	if m.NIovs > MaxIovs {
		return fmt.Errorf("wire: vector niovs %d exceeds %d", m.NIovs, MaxIovs)
	}
	off := 8
	for i := 0; i < MaxIovs; i++ {
		m.Iov[i].Addr = binary.LittleEndian.Uint64(buf[off : off+8])
		m.Iov[i].Len = binary.LittleEndian.Uint64(buf[off+8 : off+16])
		m.Iov[i].Key = binary.LittleEndian.Uint64(buf[off+16 : off+24])
		off += 24
	}
	return nil
}

// EncodeProgress serializes m into buf.
func EncodeProgress(buf []byte, m *Progress) error {
	if len(buf) < ProgressWireSize {
		return fmt.Errorf("wire: progress buffer too small: %d < %d", len(buf), ProgressWireSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], m.NFilled)
	binary.LittleEndian.PutUint64(buf[8:16], m.NLeftover)
	return nil
}

// DecodeProgress parses buf into m.
func DecodeProgress(buf []byte, m *Progress) error {
	if len(buf) < ProgressWireSize {
		return fmt.Errorf("wire: progress message truncated: %d < %d", len(buf), ProgressWireSize)
	}
	m.NFilled = binary.LittleEndian.Uint64(buf[0:8])
	m.NLeftover = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}
