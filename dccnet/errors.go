package dccnet

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the frame codec, matched with errors.Is after Decode
// has wrapped them with errors.WithStack.
var (
	// ErrShortHeader indicates fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("dccnet: short frame header")
	// ErrBadSync indicates a sync word mismatch.
	ErrBadSync = errors.New("dccnet: bad sync word")
	// ErrShortBody indicates the declared length exceeds the available bytes.
	ErrShortBody = errors.New("dccnet: short frame body")
	// ErrBadChecksum indicates the checksum field did not validate.
	ErrBadChecksum = errors.New("dccnet: bad checksum")
)

// ConnectionError wraps a fatal transport-level failure (dial, read or
// write failure, unexpected EOF). It is always fatal to the connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("dccnet: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError wraps a decode failure or unexpected flag combination
// observed on the wire.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("dccnet: protocol error: %v", e.Err) }

func (e *ProtocolError) Unwrap() error { return e.Err }

// RstReceivedError reports that the peer reset the connection, carrying
// any diagnostic payload it sent.
type RstReceivedError struct {
	Diagnostic string
}

func (e *RstReceivedError) Error() string {
	if e.Diagnostic == "" {
		return "dccnet: peer sent RST"
	}
	return fmt.Sprintf("dccnet: peer sent RST: %s", e.Diagnostic)
}

// RetransmissionExhaustedError reports that MaxSendAttempts transmissions
// of a frame all went unacknowledged.
type RetransmissionExhaustedError struct {
	Attempts int
}

func (e *RetransmissionExhaustedError) Error() string {
	return fmt.Sprintf("dccnet: retransmission exhausted after %d attempts", e.Attempts)
}

// TimeoutError reports that the demultiplexer's read silence bound elapsed.
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "dccnet: read timeout" }

// errDemuxShutdown and errClosedMailbox are internal causes wrapped into
// ConnectionError when a wait is interrupted by the demultiplexer's
// synthesized shutdown rather than by a genuine read/write failure.
var (
	errDemuxShutdown = errors.New("dccnet: demultiplexer shut down")
	errClosedMailbox = errors.New("dccnet: mailbox closed")
)

// IsFatal reports whether err should terminate the connection's loops,
// as opposed to being recovered locally (UnexpectedFlag, InvalidId cases,
// which callers simply treat as "keep waiting").
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *ConnectionError, *RstReceivedError, *RetransmissionExhaustedError:
		return true
	default:
		return false
	}
}
