package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	_ = zap.L().Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "loadplan: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
