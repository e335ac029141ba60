package md5client

import (
	"context"

	"github.com/dccnet-go/dccnet/dccnet"
)

// Connect dials target (host:port) and runs the MD5 flow against it using
// credential, matching spec.md §6's `md5 <HOST>:<PORT> <GAS>` behaviour.
func Connect(ctx context.Context, target, credential string, cfg dccnet.Config) error {
	conn, err := dccnet.Dial(ctx, target, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return New(conn).Run(ctx, credential)
}
