// Package sshtun wires an SSH connection as a transport for reaching a
// dccnet peer that is only reachable from the far side of an SSH server,
// using golang.org/x/crypto/ssh port forwarding ("direct-tcpip" channels)
// the way v2/cli/transport.go wires an SSH session for its own transport.
// It is a debugging aid, not part of the XFER or MD5 wire protocols.
package sshtun

import (
	"context"
	"net"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/dccnet-go/dccnet/dccnet"
)

// Config configures the SSH leg of a Tunnel. Unset fields fall back to
// DefaultConfig, the same defaulting idiom dccnet.Config uses.
type Config struct {
	DialTimeout time.Duration
}

// DefaultConfig mirrors dccnet.DialTimeout for the SSH handshake leg.
var DefaultConfig = Config{
	DialTimeout: 3 * time.Second,
}

// Tunnel holds an established SSH connection used to reach dccnet peers by
// opening forwarded ("direct-tcpip") channels through it.
type Tunnel struct {
	client *ssh.Client
}

// Dial connects to sshAddr (host:port) and authenticates using sshConfig,
// returning a Tunnel that can open forwarded connections to dccnet peers
// reachable from the SSH server's network.
func Dial(sshAddr string, sshConfig *ssh.ClientConfig, cfg Config) (*Tunnel, error) {
	resolved := cfg
	_ = mergo.Merge(&resolved, DefaultConfig)

	nc, err := net.DialTimeout("tcp", sshAddr, resolved.DialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "sshtun: dial %s", sshAddr)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(nc, sshAddr, sshConfig)
	if err != nil {
		_ = nc.Close()
		return nil, errors.Wrapf(err, "sshtun: handshake with %s", sshAddr)
	}

	return &Tunnel{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// DialDCCNET opens a direct-tcpip channel to remoteAddr through the
// tunnel and wraps the resulting net.Conn with the DCCNET reliability
// layer exactly as dccnet.Dial would if remoteAddr were reachable
// directly.
func (t *Tunnel) DialDCCNET(ctx context.Context, remoteAddr string, cfg dccnet.Config) (*dccnet.Conn, error) {
	nc, err := t.client.Dial("tcp", remoteAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "sshtun: forward to %s", remoteAddr)
	}

	conn, err := dccnet.Accept(ctx, nc, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return conn, nil
}

// Close tears down the underlying SSH connection and every channel opened
// through it.
func (t *Tunnel) Close() error {
	return t.client.Close()
}
