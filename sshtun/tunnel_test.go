package sshtun

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/dccnet-go/dccnet/dccnet"
	"github.com/dccnet-go/dccnet/testutil"
)

// forwarder is an SSH channel handler that proxies bytes between the
// channel and target, standing in for the destination half of a real
// "direct-tcpip" forward the way an sshd would perform it.
func forwarder(target string) testutil.Handler {
	return func(t *testing.T, ch ssh.Channel) {
		dest, err := net.Dial("tcp", target)
		require.NoError(t, err)
		defer dest.Close()

		done := make(chan struct{}, 2)
		go func() { _, _ = io.Copy(dest, ch); done <- struct{}{} }()
		go func() { _, _ = io.Copy(ch, dest); done <- struct{}{} }()
		<-done
	}
}

func fastConfig() dccnet.Config {
	cfg := dccnet.DefaultConfig
	cfg.AckWaitTimeout = 80 * time.Millisecond
	// Zero would be replaced by DefaultConfig's 200ms when the Conn is built.
	cfg.MinRetransmitInterval = time.Millisecond
	return cfg
}

// A dccnet connection dialled through a Tunnel behaves like one dialled
// directly: frames sent from either side are delivered to the other.
func TestTunnelCarriesDCCNETTraffic(t *testing.T) {
	const uname, password = "alice", "secret"

	peerListener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer peerListener.Close()

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		nc, err := peerListener.Accept()
		require.NoError(t, err)
		conn, err := dccnet.Accept(context.Background(), nc, fastConfig())
		require.NoError(t, err)
		defer conn.Close()

		frame, err := conn.Channel.ReceiveFrame()
		require.NoError(t, err)
		require.Equal(t, "ping", string(frame.Payload))
		_, err = conn.Channel.SendFrame([]byte("pong"), dccnet.NextID(frame.ID), 0)
		require.NoError(t, err)
	}()

	sshServer := testutil.NewSSHServerHandler(t, uname, password, forwarder(peerListener.Addr().String()))
	defer sshServer.Close()

	sshAddr := "localhost:" + strconv.Itoa(sshServer.Port())
	sshConfig := &ssh.ClientConfig{
		User:            uname,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // test-only, host key is ephemeral.
	}

	tunnel, err := Dial(sshAddr, sshConfig, DefaultConfig)
	require.NoError(t, err)
	defer tunnel.Close()

	conn, err := tunnel.DialDCCNET(context.Background(), peerListener.Addr().String(), fastConfig())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Channel.SendFrame([]byte("ping"), 0, 0)
	require.NoError(t, err)
	reply, err := conn.Channel.ReceiveFrame()
	require.NoError(t, err)
	require.Equal(t, "pong", string(reply.Payload))

	<-peerDone
}
