// Command md5 implements the DCCNET MD5 CLI described in spec.md §6:
//
//	md5 <HOST>:<PORT> <GAS>
//
// It authenticates to the server with the GAS credential, then replies to
// each line the server sends with the hexadecimal MD5 digest of that line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dccnet-go/dccnet/dccnet"
	"github.com/dccnet-go/dccnet/md5client"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "md5:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: md5 <HOST>:<PORT> <GAS>")
	}

	target, credential := args[0], args[1]
	return md5client.Connect(context.Background(), target, credential, dccnet.DefaultConfig)
}
