package dccnet

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The demultiplexer must accumulate bytes across several short writes
// before it can decode a frame, rather than assuming one Read call
// delivers exactly one whole frame (spec.md §4.2).
func TestDemuxAccumulatesSplitWrites(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	server := newConn(s, "server", testConfig(), nil)
	defer server.Close()

	encoded := Encode([]byte("split across writes"), 0, 0)

	// c has no Conn of its own; drain the ACK that ReceiveFrame writes back
	// so that write does not block on the unbuffered pipe.
	go func() { _, _ = io.Copy(io.Discard, c) }()

	go func() {
		for _, chunk := range chunkBytes(encoded, 3) {
			_, _ = c.Write(chunk)
			time.Sleep(time.Millisecond)
		}
	}()

	f, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("split across writes"), f.Payload)
}

// A single Write carrying two back-to-back frames must yield both to their
// mailboxes (TCP coalescence): the DATA frame to the data slot and the ACK
// frame to the ack slot. Two DATA frames in one write would not both be
// kept, since a full single-slot mailbox drops the newcomer.
func TestDemuxSplitsCoalescedFrames(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	server := newConn(s, "server", testConfig(), nil)
	defer server.Close()

	// c has no Conn of its own; drain the ACK that ReceiveFrame writes back.
	go func() { _, _ = io.Copy(io.Discard, c) }()

	first := Encode([]byte("first"), 0, 0)
	second := Encode(nil, 1, FlagACK)
	coalesced := append(append([]byte{}, first...), second...)

	go func() { _, _ = c.Write(coalesced) }()

	f1, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), f1.Payload)

	f2, ok := server.ackMbx.take(make(chan struct{}))
	require.True(t, ok)
	assert.True(t, f2.IsACK())
	assert.Equal(t, uint16(1), f2.ID)
}

// A corrupt frame is dropped without disturbing a valid frame that
// follows it on the wire.
func TestDemuxDropsBadFrameAndResyncs(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	server := newConn(s, "server", testConfig(), nil)
	defer server.Close()

	garbage := []byte{0xAA, 0xBB, 0xCC}
	good := Encode([]byte("ok"), 0, 0)
	stream := append(append([]byte{}, garbage...), good...)

	// c has no Conn of its own; drain the ACK that ReceiveFrame writes back.
	go func() { _, _ = io.Copy(io.Discard, c) }()

	go func() { _, _ = c.Write(stream) }()

	f, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), f.Payload)
}

func chunkBytes(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
