package app

import (
	"context"
	"log/slog"

	"github.com/you-humble/detectify/internal/infra/broker"
)

// workerApp runs the five stage consumer pools.
type workerApp struct {
	di *dependencyInjector
}

func NewWorker(cfgPath string) *workerApp {
	di := newDI(cfgPath)
	di.Logger()
	return &workerApp{di: di}
}

func (a *workerApp) Run(ctx context.Context) error {
	cfg := a.di.Config()
	b := a.di.Broker(ctx)
	p := a.di.Pipeline(ctx)
	topics := cfg.NATS.Topics
	workers := cfg.NATS.Workers

	defer a.di.NATSConn(ctx).Close()

	stages := []struct {
		subject string
		size    int
		handler broker.Handler
	}{
		{topics.Available, workers.Available, p.HandleAvailable},
		{topics.Hash, workers.Hash, p.HandleHash},
		{topics.Report, workers.Report, p.HandleReport},
		{topics.Classify, workers.Classify, p.HandleClassify},
		{topics.Completed, workers.Completed, p.HandleCompleted},
	}

	for _, stage := range stages {
		if err := b.Subscribe(ctx, stage.subject, stage.size, stage.handler); err != nil {
			return err
		}
	}
	slog.Info("pipeline worker running")

	b.Stop(ctx)

	slog.Info("pipeline worker stopped")
	return nil
}
