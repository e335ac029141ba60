// Package dccnet implements the DCCNET reliable-framing protocol: a fixed
// 15-byte-header frame format with an Internet checksum, layered directly
// on a TCP byte stream, plus the stop-and-wait reliability machinery that
// rides on top of it (Conn, the receive demultiplexer, and the reliable
// channel primitives used by the xfer and md5client packages).
package dccnet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Sync is the fixed 32-bit synchronization constant that opens every frame.
	Sync uint32 = 0xDCC023C2

	// HeaderSize is the size, in bytes, of the fixed frame header.
	HeaderSize = 15

	// MaxPayload is the largest payload a single frame may carry.
	MaxPayload = 4096

	// MaxFrame is the largest a complete encoded frame (header+payload) may be.
	MaxFrame = HeaderSize + MaxPayload
)

// Flag bits recognised in the frame header. A frame with none of these set
// is a DATA frame.
const (
	FlagACK byte = 0x80
	FlagEND byte = 0x40
	FlagRST byte = 0x20
)

// RSTID is the sequence identifier carried by every RST frame.
const RSTID uint16 = 0xFFFF

// Frame is the sole entity that crosses the wire: a 15-byte header
// (sync1, sync2, checksum, length, id, flags) followed by Payload.
type Frame struct {
	ID      uint16
	Flags   byte
	Payload []byte
}

// IsACK reports whether f is an acknowledgement frame.
func (f *Frame) IsACK() bool { return f.Flags&FlagACK != 0 }

// IsEND reports whether f marks the end of a direction's transfer.
func (f *Frame) IsEND() bool { return f.Flags&FlagEND != 0 }

// IsRST reports whether f is a reset frame.
func (f *Frame) IsRST() bool { return f.Flags&FlagRST != 0 }

// IsData reports whether f carries no recognised flag, i.e. is a plain
// DATA frame.
func (f *Frame) IsData() bool { return f.Flags == 0 }

// NextID toggles a one-bit stop-and-wait sequence identifier.
func NextID(id uint16) uint16 { return id ^ 1 }

// Encode serialises payload, id and flags into a complete on-wire frame,
// computing and inserting the checksum. It panics if payload exceeds
// MaxPayload; callers are expected to chunk input before calling Encode
// (the transfer engine never passes more than MaxPayload bytes).
func Encode(payload []byte, id uint16, flags byte) []byte {
	if len(payload) > MaxPayload {
		panic("dccnet: payload exceeds MaxPayload")
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], Sync)
	binary.BigEndian.PutUint32(buf[4:8], Sync)
	// buf[8:10] checksum left zero for the initial sum.
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(payload)))
	binary.BigEndian.PutUint16(buf[12:14], id)
	buf[14] = flags
	copy(buf[HeaderSize:], payload)

	binary.BigEndian.PutUint16(buf[8:10], checksum(buf))
	return buf
}

// EncodeFrame is a convenience wrapper around Encode for an already
// constructed Frame value.
func EncodeFrame(f *Frame) []byte {
	return Encode(f.Payload, f.ID, f.Flags)
}

// Decode parses one frame from the head of b. On success it returns the
// frame and the number of bytes consumed (HeaderSize+length); b may carry
// trailing bytes belonging to a subsequent frame, which the caller (the
// demultiplexer's accumulating reader) is responsible for retaining.
//
// Decode never reads past the declared length; a buffer that starts with
// a valid header but has not yet accumulated the full payload yields
// ErrShortBody so the caller can read more and retry.
func Decode(b []byte) (f *Frame, consumed int, err error) {
	if len(b) < HeaderSize {
		return nil, 0, errors.WithStack(ErrShortHeader)
	}

	sync1 := binary.BigEndian.Uint32(b[0:4])
	sync2 := binary.BigEndian.Uint32(b[4:8])
	if sync1 != Sync || sync2 != Sync {
		return nil, 0, errors.WithStack(ErrBadSync)
	}

	wantChecksum := binary.BigEndian.Uint16(b[8:10])
	length := binary.BigEndian.Uint16(b[10:12])
	id := binary.BigEndian.Uint16(b[12:14])
	flags := b[14]

	total := HeaderSize + int(length)
	if len(b) < total {
		return nil, 0, errors.WithStack(ErrShortBody)
	}

	frameBytes := make([]byte, total)
	copy(frameBytes, b[:total])
	binary.BigEndian.PutUint16(frameBytes[8:10], 0)

	if got := checksum(frameBytes); got != wantChecksum {
		return nil, 0, errors.WithStack(ErrBadChecksum)
	}

	// A zero-length payload decodes as nil, so an empty frame round-trips
	// to the same value Encode was given.
	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		copy(payload, b[HeaderSize:total])
	}

	return &Frame{ID: id, Flags: flags, Payload: payload}, total, nil
}

// checksum computes the Internet (one's-complement) checksum of frame: the
// 16-bit end-around sum of all big-endian 16-bit words, zero-padded on an
// odd trailing byte, complemented. A correct frame (checksum field
// included) always sums to 0xFFFF.
func checksum(frame []byte) uint16 {
	var sum uint32
	n := len(frame)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(frame[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(frame[n-1]) << 8
	}
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
