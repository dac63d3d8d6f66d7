package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TradeDeskPlatform/services/tenant-service/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.PostgresConnector).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
