package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ytmusicdl/cmd"
	"ytmusicdl/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := cmd.NewApp(os.Stdout, os.Stderr, version)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		logging.NewLogger(os.Stderr, "info").Fatal("application error", "err", err)
	}
}
