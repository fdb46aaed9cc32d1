// Command logexport copies raw analytics logs (hits and visits) for a date
// range into ClickHouse or a SQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], defaultDeps())
	stop()
	os.Exit(code)
}
