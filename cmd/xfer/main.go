// Command xfer implements the DCCNET XFER CLI described in spec.md §6:
//
//	xfer -s <PORT> <INPUT> <OUTPUT>
//	xfer -c <HOST>:<PORT> <INPUT> <OUTPUT>
//
// Both sides read INPUT and transmit it to the peer while simultaneously
// writing whatever the peer sends to OUTPUT.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dccnet-go/dccnet/dccnet"
	"github.com/dccnet-go/dccnet/xfer"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "xfer:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: xfer (-s <PORT> | -c <HOST>:<PORT>) <INPUT> <OUTPUT>")
	}

	mode, target, inputPath, outputPath := args[0], args[1], args[2], args[3]

	input, err := os.Open(inputPath) //nolint:gosec // path comes from trusted CLI args.
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	output, err := os.Create(outputPath) //nolint:gosec // path comes from trusted CLI args.
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer output.Close()

	ctx := context.Background()
	cfg := dccnet.DefaultConfig

	var result xfer.Result
	switch mode {
	case "-s":
		port, perr := strconv.Atoi(target)
		if perr != nil {
			return fmt.Errorf("bad port %q: %w", target, perr)
		}
		result, err = xfer.ListenAndServe(ctx, port, input, output, cfg)
	case "-c":
		result, err = xfer.Connect(ctx, target, input, output, cfg)
	default:
		return fmt.Errorf("unknown mode %q, expected -s or -c", mode)
	}
	if err != nil {
		return err
	}

	if fatal := firstFatal(result.SendErr, result.ReceiveErr); fatal != nil {
		return fatal
	}
	return nil
}

func firstFatal(errs ...error) error {
	for _, err := range errs {
		if dccnet.IsFatal(err) {
			return err
		}
	}
	return nil
}
