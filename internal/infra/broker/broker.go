package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

// Handler processes one delivered message. Returning an error leaves the
// message unacknowledged (Nak) for broker redelivery; handlers are
// expected to be idempotent because delivery is at-least-once.
type Handler func(ctx context.Context, data []byte) error

type jetStreamBroker struct {
	js     nats.JetStreamContext
	stream string

	workers errgroup.Group
	subs    []*nats.Subscription
}

func New(js nats.JetStreamContext, stream string) *jetStreamBroker {
	return &jetStreamBroker{
		js:     js,
		stream: stream,
	}
}

func (b *jetStreamBroker) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", subject, err)
	}

	ack, err := b.js.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	slog.Debug("message published",
		slog.String("subject", subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)
	return nil
}

// Subscribe attaches a durable pull consumer to subject and runs up to
// size concurrent workers pulling from it.
func (b *jetStreamBroker) Subscribe(ctx context.Context, subject string, size int, handler Handler) error {
	consumerName := durableName(subject)

	_, err := b.js.AddConsumer(b.stream, &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: subject,
		MaxAckPending: size * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer %s: %w", consumerName, err)
	}

	sub, err := b.js.PullSubscribe(subject, consumerName)
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe %s: %w", subject, err)
	}
	b.subs = append(b.subs, sub)

	for range size {
		b.workers.Go(func() error {
			b.runWorker(ctx, sub, subject, handler)
			return nil
		})
	}

	slog.Info("consumer pool running",
		slog.String("subject", subject),
		slog.Int("workers", size),
	)
	return nil
}

func (b *jetStreamBroker) runWorker(ctx context.Context, sub *nats.Subscription, subject string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Warn("NATS Fetch",
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			if err := handler(ctx, msg.Data); err != nil {
				slog.Error("handler failed, message left for redelivery",
					slog.String("subject", subject),
					slog.String("error", err.Error()),
				)
				_ = msg.Nak()
				continue
			}

			if err := msg.Ack(); err != nil {
				slog.Warn("NATS Ack", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop waits for running workers to exit and drains the subscriptions.
func (b *jetStreamBroker) Stop(ctx context.Context) {
	<-ctx.Done()

	_ = b.workers.Wait()

	for _, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
		}
	}

	slog.Info("broker consumers stopped")
}

func durableName(subject string) string {
	return "detectify-" + strings.ReplaceAll(subject, ".", "-")
}
