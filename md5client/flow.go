// Package md5client implements the MD5 application: a client that
// authenticates to a remote server with a credential ("GAS"), then
// repeatedly receives newline-delimited text chunks and replies with the
// hexadecimal MD5 digest of each line.
package md5client

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // required by the protocol, not used for security.
	"encoding/hex"
	"strings"

	"github.com/dccnet-go/dccnet/dccnet"
)

// Flow drives one MD5 session against a dccnet.Conn that has already been
// established (dialled) by the caller.
type Flow struct {
	conn *dccnet.Conn
}

// New creates a Flow bound to conn.
func New(conn *dccnet.Conn) *Flow {
	return &Flow{conn: conn}
}

// Run authenticates with credential, then services the server's line
// stream until it sends END. It never sends an END itself (spec.md §4.4).
func (f *Flow) Run(ctx context.Context, credential string) error {
	id, err := f.authenticate(credential)
	if err != nil {
		return err
	}
	return f.serviceLines(id)
}

// authenticate sends the GAS credential as the first DATA frame (id 0),
// receives the server's first line, verifies its id, and replies with
// that line's digest, per spec.md §4.4 step 1-2 and scenario F.
func (f *Flow) authenticate(credential string) (nextID uint16, err error) {
	const gasID = 0

	gas := []byte(credential + "\n")
	if _, err := f.conn.Channel.SendFrame(gas, gasID, 0); err != nil {
		return 0, err
	}

	frame, err := f.conn.Channel.ReceiveFrame()
	if err != nil {
		return 0, err
	}
	if frame.IsEND() {
		return 0, &dccnet.ProtocolError{Err: errUnexpectedEnd}
	}
	if frame.ID != gasID {
		return 0, &dccnet.ProtocolError{Err: errHandshakeIDMismatch}
	}

	replyID := dccnet.NextID(gasID)
	digest := digestLine(trimLine(frame.Payload))
	if _, err := f.conn.Channel.SendFrame([]byte(digest), replyID, 0); err != nil {
		return 0, err
	}

	return dccnet.NextID(replyID), nil
}

// serviceLines receives DATA frames, accumulating bytes until a complete
// line (terminated by '\n') has been assembled across possibly several
// frames, then replies with one digest per non-empty line. id starts at
// the value authenticate returned (one past the handshake reply) and
// toggles once per line sent, so consecutive outgoing DATA frames always
// alternate (see SPEC_FULL.md's resolution of the id-toggling open
// question).
func (f *Flow) serviceLines(id uint16) error {
	var pending []byte

	for {
		frame, err := f.conn.Channel.ReceiveFrame()
		if err != nil {
			return err
		}
		if frame.IsEND() {
			return nil
		}

		pending = append(pending, frame.Payload...)

		if !bytes.HasSuffix(pending, []byte("\n")) {
			continue
		}

		for _, line := range strings.Split(strings.TrimSpace(string(pending)), "\n") {
			if line == "" {
				continue
			}
			digest := digestLine(line)
			if _, err := f.conn.Channel.SendFrame([]byte(digest), id, 0); err != nil {
				return err
			}
			id = dccnet.NextID(id)
		}
		pending = pending[:0]
	}
}

func digestLine(line string) string {
	sum := md5.Sum([]byte(line)) //nolint:gosec
	return hex.EncodeToString(sum[:]) + "\n"
}

func trimLine(payload []byte) string {
	return strings.TrimSpace(string(payload))
}
