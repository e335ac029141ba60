// Package xfer implements the XFER application: a symmetric peer-to-peer
// file transfer in which each side simultaneously sends the contents of a
// local input file and writes the contents received from the peer to a
// local output file, using the dccnet reliable channel for both
// directions.
package xfer

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/dccnet-go/dccnet/dccnet"
)

// Engine drives one XFER connection: a send loop reading from Input and a
// receive loop writing to Output, running concurrently over the same
// dccnet.Conn.
type Engine struct {
	conn   *dccnet.Conn
	input  io.Reader
	output *bufio.Writer
}

// New creates an Engine that will transfer input to the peer and write
// whatever the peer sends to output.
func New(conn *dccnet.Conn, input io.Reader, output io.Writer) *Engine {
	return &Engine{
		conn:   conn,
		input:  input,
		output: bufio.NewWriter(output),
	}
}

// Result carries the outcome of both directions of an XFER transfer.
type Result struct {
	SendErr    error
	ReceiveErr error
}

// Run drives both directions of the transfer to completion and returns
// once both have stopped. If either direction fails fatally, Run emits an
// RST carrying the failure's message before returning, per spec.md §4.4's
// shutdown discipline.
func (e *Engine) Run(ctx context.Context) Result {
	var wg sync.WaitGroup
	var res Result

	wg.Add(2)
	go func() {
		defer wg.Done()
		res.SendErr = e.sendLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		res.ReceiveErr = e.receiveLoop(ctx)
	}()
	wg.Wait()

	if fatal := firstFatal(res.SendErr, res.ReceiveErr); fatal != nil {
		_ = e.conn.Channel.SendRst(fatal.Error())
	}

	return res
}

func firstFatal(errs ...error) error {
	for _, err := range errs {
		if dccnet.IsFatal(err) {
			return err
		}
	}
	return nil
}

// sendLoop reads up to dccnet.MaxPayload bytes at a time from Input and
// transmits each chunk as a DATA frame, advancing the sequence id only on
// success. Zero bytes read signals EOF: an END frame is sent and the loop
// stops.
func (e *Engine) sendLoop(ctx context.Context) error {
	id := uint16(0)
	buf := make([]byte, dccnet.MaxPayload)

	for {
		select {
		case <-ctx.Done():
			return &dccnet.ConnectionError{Op: "send loop", Err: ctx.Err()}
		default:
		}

		n, err := e.input.Read(buf)
		if n > 0 {
			_, sendErr := e.conn.Channel.SendFrame(append([]byte{}, buf[:n]...), id, 0)
			if sendErr != nil {
				// SendFrame resolves id mismatches and stray DATA frames
				// internally; anything it returns (RST, retransmission
				// exhaustion, a write failure) is fatal to this loop.
				return sendErr
			}
			id = dccnet.NextID(id)
		}

		if err == io.EOF || n == 0 {
			return e.conn.Channel.SendEnd(id)
		}
		if err != nil {
			return &dccnet.ConnectionError{Op: "read input", Err: err}
		}
	}
}

// receiveLoop consumes DATA/END frames from the peer, writes delivered
// payloads to Output (flushing after each write), and discards
// duplicates (a DATA frame whose id doesn't match the next expected id).
func (e *Engine) receiveLoop(ctx context.Context) error {
	id := uint16(0)

	for {
		select {
		case <-ctx.Done():
			return &dccnet.ConnectionError{Op: "receive loop", Err: ctx.Err()}
		default:
		}

		f, err := e.conn.Channel.ReceiveFrame()
		if err != nil {
			return err
		}

		if f.IsEND() {
			if len(f.Payload) > 0 {
				if err := e.write(f.Payload); err != nil {
					return err
				}
			}
			return nil
		}

		if f.ID != id {
			// Retransmitted duplicate of the previous frame; already
			// ACKed by ReceiveFrame, do not deliver again.
			continue
		}

		if err := e.write(f.Payload); err != nil {
			return err
		}
		id = dccnet.NextID(id)
	}
}

func (e *Engine) write(b []byte) error {
	if _, err := e.output.Write(b); err != nil {
		return &dccnet.ConnectionError{Op: "write output", Err: err}
	}
	if err := e.output.Flush(); err != nil {
		return &dccnet.ConnectionError{Op: "flush output", Err: err}
	}
	return nil
}
