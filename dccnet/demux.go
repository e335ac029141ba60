package dccnet

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// demultiplexer continuously reads frames off a connection's read half and
// routes them into the ack/data mailboxes. It runs for the lifetime of a
// Conn as an independent goroutine, started by newConn and torn down when
// the read side reaches EOF, hits its idle timeout, or the Conn is closed.
type demultiplexer struct {
	conn     net.Conn
	connID   string
	trace    *Trace
	idle     time.Duration
	ackMbx   *mailbox
	dataMbx  *mailbox
	rst      *rstSignal
	done     chan struct{}
	doneOnce sync.Once
}

func newDemultiplexer(conn net.Conn, connID string, trace *Trace, idle time.Duration, ackMbx, dataMbx *mailbox, rst *rstSignal) *demultiplexer {
	return &demultiplexer{
		conn:    conn,
		connID:  connID,
		trace:   trace,
		idle:    idle,
		ackMbx:  ackMbx,
		dataMbx: dataMbx,
		rst:     rst,
		done:    make(chan struct{}),
	}
}

// run is the demultiplexer's main loop. It accumulates bytes until a
// complete frame's length prefix and body are available, handling TCP's
// tendency to coalesce or split writes rather than assuming one read call
// delivers exactly one frame (spec.md §4.2's accumulating-parser note).
func (d *demultiplexer) run() {
	buf := make([]byte, 0, MaxFrame)
	read := make([]byte, MaxFrame)

	defer d.shutdown(nil)

	for {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.idle)); err != nil {
			d.shutdown(&ConnectionError{Op: "set read deadline", Err: err})
			return
		}

		n, err := d.conn.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			buf = d.drainFrames(buf)
		}
		if err != nil {
			if isTimeout(err) {
				d.shutdown(&TimeoutError{})
				return
			}
			if errors.Is(err, io.EOF) {
				d.shutdown(&ConnectionError{Op: "read", Err: io.EOF})
				return
			}
			d.shutdown(&ConnectionError{Op: "read", Err: err})
			return
		}
	}
}

// drainFrames decodes as many complete frames as are present in buf,
// dispatches each, and returns the undecoded remainder.
func (d *demultiplexer) drainFrames(buf []byte) []byte {
	for {
		f, n, err := Decode(buf)
		if err != nil {
			if errors.Is(err, ErrShortHeader) || errors.Is(err, ErrShortBody) {
				// Not enough bytes yet; wait for more.
				return buf
			}
			// BadSync / BadChecksum: drop one byte and try to resynchronize,
			// rather than discarding the whole buffer, so a single corrupt
			// frame doesn't also eat a valid one that follows it.
			if d.trace != nil && d.trace.DecodeError != nil {
				d.trace.DecodeError(d.connID, err)
			}
			buf = buf[1:]
			if len(buf) == 0 {
				return buf
			}
			continue
		}

		d.dispatch(f)
		buf = buf[n:]
		if len(buf) == 0 {
			return buf
		}
	}
}

func (d *demultiplexer) dispatch(f *Frame) {
	if d.trace != nil && d.trace.FrameReceived != nil {
		d.trace.FrameReceived(d.connID, f)
	}

	switch {
	case f.IsACK():
		d.ackMbx.put(f)
	case f.IsRST():
		if d.trace != nil && d.trace.RstReceived != nil {
			d.trace.RstReceived(d.connID, string(f.Payload))
		}
		d.rst.fire(string(f.Payload))
		d.dataMbx.put(f)
	default: // DATA or END
		d.dataMbx.put(f)
	}
}

// shutdown synthesizes an END frame (id 0) into both mailboxes so any
// blocked consumer wakes, closes the done signal, and reports the cause
// via trace. Safe to call more than once; only the first call has effect.
func (d *demultiplexer) shutdown(cause error) {
	d.doneOnce.Do(func() {
		synthetic := &Frame{ID: 0, Flags: FlagEND}
		d.ackMbx.put(synthetic)
		d.dataMbx.put(synthetic)
		close(d.done)
		if d.trace != nil && d.trace.DemuxShutdown != nil {
			d.trace.DemuxShutdown(d.connID, cause)
		}
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
