package dccnet

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
)

// DialTimeout bounds how long Dial will wait for the TCP handshake to
// complete before reporting a ConnectionError.
const DialTimeout = 3 * time.Second

// Conn wraps a net.Conn with the DCCNET reliability layer: a
// demultiplexer goroutine that owns the read half exclusively, and a
// Channel that any number of writers (the transfer engine's send loop,
// its RST path) may use under a shared write lock.
type Conn struct {
	conn  net.Conn
	id    string
	cfg   Config
	trace *Trace

	writeMu sync.Mutex
	ackMbx  *mailbox
	dataMbx *mailbox
	rst     *rstSignal
	demux   *demultiplexer

	Channel *Channel
}

// ID returns the uuid assigned to this connection at construction, the
// connID passed to every trace hook so log lines can be tied to one peer.
func (c *Conn) ID() string { return c.id }

// Dial connects to target (host:port, where host may be IPv4, a hostname,
// or a bracketed IPv6 literal) and starts the DCCNET reliability layer
// over the resulting TCP connection.
func Dial(ctx context.Context, target string, cfg Config) (*Conn, error) {
	trace := ContextTrace(ctx)
	connID := uuid.New().String()

	if trace != nil && trace.ConnectStart != nil {
		trace.ConnectStart(connID, target)
	}

	start := time.Now()
	nc, err := net.DialTimeout("tcp", target, DialTimeout)

	if trace != nil && trace.ConnectDone != nil {
		trace.ConnectDone(connID, target, err, time.Since(start))
	}

	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	return newConn(nc, connID, cfg, trace), nil
}

// Accept wraps an already-accepted net.Conn (from a net.Listener) with the
// DCCNET reliability layer, for server-side use.
func Accept(ctx context.Context, nc net.Conn, cfg Config) (*Conn, error) {
	trace := ContextTrace(ctx)
	connID := uuid.New().String()

	if trace != nil && trace.ConnectDone != nil {
		trace.ConnectDone(connID, nc.RemoteAddr().String(), nil, 0)
	}

	return newConn(nc, connID, cfg, trace), nil
}

func newConn(nc net.Conn, connID string, cfg Config, trace *Trace) *Conn {
	resolved := cfg
	// mergo fills in any zero-valued field from DefaultConfig, the same
	// defaulting idiom the teacher library uses for its session and
	// transport configs.
	_ = mergo.Merge(&resolved, DefaultConfig)

	c := &Conn{
		conn:    nc,
		id:      connID,
		cfg:     resolved,
		trace:   trace,
		ackMbx:  newMailbox(),
		dataMbx: newMailbox(),
		rst:     newRstSignal(),
	}
	c.demux = newDemultiplexer(nc, connID, trace, resolved.DemuxIdleTimeout, c.ackMbx, c.dataMbx, c.rst)
	c.Channel = newChannel(c)

	go c.demux.run()

	return c
}

// Done returns a channel that is closed once the demultiplexer has shut
// down, either because the peer closed the connection, the idle timeout
// elapsed, or Close was called.
func (c *Conn) Done() <-chan struct{} { return c.demux.done }

// Close closes the underlying net.Conn. It is safe to call even if the
// demultiplexer has already shut the connection down on its own.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if c.trace != nil && c.trace.ConnectionClosed != nil {
		c.trace.ConnectionClosed(c.id, err)
	}
	if err != nil {
		return errors.Wrap(err, "dccnet: close")
	}
	return nil
}
