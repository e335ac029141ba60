package xfer

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/dccnet-go/dccnet/dccnet"
	"github.com/pkg/errors"
)

// ListenAndServe listens on [::]:port, accepts a single connection, runs
// the XFER flow against it, and returns once that flow completes. It
// matches spec.md §6's `xfer -s <PORT> <INPUT> <OUTPUT>` server behaviour.
func ListenAndServe(ctx context.Context, port int, input io.Reader, output io.Writer, cfg dccnet.Config) (Result, error) {
	addr := fmt.Sprintf("[::]:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Result{}, errors.Wrapf(err, "xfer: listen on %s", addr)
	}
	defer listener.Close()

	trace := dccnet.ContextTrace(ctx)
	if trace != nil && trace.ConnectStart != nil {
		trace.ConnectStart("listener", addr)
	}

	nc, err := listener.Accept()
	if err != nil {
		return Result{}, errors.Wrap(err, "xfer: accept")
	}

	conn, err := dccnet.Accept(ctx, nc, cfg)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	return New(conn, input, output).Run(ctx), nil
}

// Connect dials target (host:port) and runs the XFER flow against it,
// matching spec.md §6's `xfer -c <HOST>:<PORT> <INPUT> <OUTPUT>` client
// behaviour.
func Connect(ctx context.Context, target string, input io.Reader, output io.Writer, cfg dccnet.Config) (Result, error) {
	conn, err := dccnet.Dial(ctx, target, cfg)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	return New(conn, input, output).Run(ctx), nil
}
