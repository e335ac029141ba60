package md5client

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dccnet-go/dccnet/dccnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() dccnet.Config {
	cfg := dccnet.DefaultConfig
	cfg.AckWaitTimeout = 80 * time.Millisecond
	// Zero would be replaced by DefaultConfig's 200ms when the Conn is built.
	cfg.MinRetransmitInterval = time.Millisecond
	cfg.DemuxIdleTimeout = 2 * time.Second
	return cfg
}

func serverSide(t *testing.T, nc net.Conn) *dccnet.Conn {
	t.Helper()
	conn, err := dccnet.Accept(context.Background(), nc, fastConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Scenario F: the handshake exchanges credential and first line exactly
// as spec.md describes.
func TestFlowHandshake(t *testing.T) {
	c, s := net.Pipe()
	clientConn, err := dccnet.Accept(context.Background(), c, fastConfig())
	require.NoError(t, err)
	defer clientConn.Close()

	server := serverSide(t, s)

	flowDone := make(chan error, 1)
	go func() { flowDone <- New(clientConn).Run(context.Background(), "GAS") }()

	gasFrame, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), gasFrame.ID)
	assert.Equal(t, "GAS\n", string(gasFrame.Payload))

	_, err = server.Channel.SendFrame([]byte("line1\n"), 0, 0)
	require.NoError(t, err)

	reply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), reply.ID)
	assert.Equal(t, md5Hex("line1")+"\n", string(reply.Payload))

	require.NoError(t, server.Channel.SendEnd(dccnet.NextID(reply.ID)))
	require.NoError(t, <-flowDone)
}

// A line split across two frames must still be digested as a whole once
// both halves have arrived.
func TestFlowLineSplitAcrossFrames(t *testing.T) {
	c, s := net.Pipe()
	clientConn, err := dccnet.Accept(context.Background(), c, fastConfig())
	require.NoError(t, err)
	defer clientConn.Close()

	server := serverSide(t, s)

	flowDone := make(chan error, 1)
	go func() { flowDone <- New(clientConn).Run(context.Background(), "GAS") }()

	_, err = server.Channel.ReceiveFrame()
	require.NoError(t, err)
	_, err = server.Channel.SendFrame([]byte("hello\n"), 0, 0)
	require.NoError(t, err)
	_, err = server.Channel.ReceiveFrame()
	require.NoError(t, err)

	_, err = server.Channel.SendFrame([]byte("wor"), 0, 0)
	require.NoError(t, err)
	_, err = server.Channel.SendFrame([]byte("ld\n"), 1, 0)
	require.NoError(t, err)

	reply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, md5Hex("world")+"\n", string(reply.Payload))

	require.NoError(t, server.Channel.SendEnd(dccnet.NextID(reply.ID)))
	require.NoError(t, <-flowDone)
}

// Multiple non-empty lines delivered in a single frame each get their own
// reply, with alternating ids.
func TestFlowMultipleLinesInOneFrame(t *testing.T) {
	c, s := net.Pipe()
	clientConn, err := dccnet.Accept(context.Background(), c, fastConfig())
	require.NoError(t, err)
	defer clientConn.Close()

	server := serverSide(t, s)

	flowDone := make(chan error, 1)
	go func() { flowDone <- New(clientConn).Run(context.Background(), "GAS") }()

	_, err = server.Channel.ReceiveFrame()
	require.NoError(t, err)
	_, err = server.Channel.SendFrame([]byte("first\n"), 0, 0)
	require.NoError(t, err)
	firstReply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, md5Hex("first")+"\n", string(firstReply.Payload))
	assert.Equal(t, uint16(1), firstReply.ID)

	_, err = server.Channel.SendFrame([]byte("second\nthird\n"), dccnet.NextID(firstReply.ID), 0)
	require.NoError(t, err)

	secondReply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, md5Hex("second")+"\n", string(secondReply.Payload))
	assert.Equal(t, uint16(0), secondReply.ID)

	thirdReply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, md5Hex("third")+"\n", string(thirdReply.Payload))
	assert.Equal(t, uint16(1), thirdReply.ID)

	require.NoError(t, server.Channel.SendEnd(dccnet.NextID(thirdReply.ID)))
	require.NoError(t, <-flowDone)
}

// Outgoing DATA ids must keep alternating across the handshake/service
// boundary: the handshake reply is always id 1 (spec.md §4.4 step 2), so
// the first service reply must be id 0, the next id 1, and so on — never
// repeating the handshake reply's id.
func TestFlowRepliesAlternateAcrossHandshakeBoundary(t *testing.T) {
	c, s := net.Pipe()
	clientConn, err := dccnet.Accept(context.Background(), c, fastConfig())
	require.NoError(t, err)
	defer clientConn.Close()

	server := serverSide(t, s)

	flowDone := make(chan error, 1)
	go func() { flowDone <- New(clientConn).Run(context.Background(), "GAS") }()

	_, err = server.Channel.ReceiveFrame()
	require.NoError(t, err)
	_, err = server.Channel.SendFrame([]byte("line0\n"), 0, 0)
	require.NoError(t, err)

	handshakeReply, err := server.Channel.ReceiveFrame()
	require.NoError(t, err)
	require.Equal(t, uint16(1), handshakeReply.ID)

	wantIDs := []uint16{0, 1, 0, 1}
	lastID := handshakeReply.ID
	for i, want := range wantIDs {
		line := fmt.Sprintf("line%d\n", i+1)
		_, err = server.Channel.SendFrame([]byte(line), dccnet.NextID(lastID), 0)
		require.NoError(t, err)

		reply, err := server.Channel.ReceiveFrame()
		require.NoError(t, err)
		assert.Equalf(t, want, reply.ID, "reply %d", i)
		lastID = reply.ID
	}

	require.NoError(t, server.Channel.SendEnd(dccnet.NextID(lastID)))
	require.NoError(t, <-flowDone)
}
