package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/you-humble/detectify/internal/app"
)

const cfgPath = "./configs/local.yaml"

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	a := app.NewWorker(cfgPath)
	if err := a.Run(ctx); err != nil {
		panic(err)
	}
}
