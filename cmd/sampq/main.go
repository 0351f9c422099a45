// sampq queries SA:MP and open.mp servers over the legacy UDP query protocol.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/sampq/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout)
	stop()

	os.Exit(code)
}
