package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdholdren/linkcal/internal/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Cobra already printed the error
	if err := commands.New().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
