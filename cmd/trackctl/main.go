// Command trackctl signs in to the traceability console from a terminal and
// keeps the session renewed while calling the console API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oktotrack/console/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openFromConfig).ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
