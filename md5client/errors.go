package md5client

import "github.com/pkg/errors"

var (
	errUnexpectedEnd       = errors.New("md5client: server ended session before sending a line")
	errHandshakeIDMismatch = errors.New("md5client: server's handshake reply used a different id than the GAS frame")
)
