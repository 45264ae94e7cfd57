package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aryanagg/si206-final/internal/cli"
	"github.com/aryanagg/si206-final/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Ignoring unreadable .env file: %v", err)
	}

	// An interrupted run rolls back its open transaction.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
