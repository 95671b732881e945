package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/gmailbot/internal/backoff"
	"github.com/mixelka/gmailbot/internal/metrics"
)

// EventHandler syncs the account named by an envelope
type EventHandler interface {
	HandleEvent(ctx context.Context, emailAddress string, hint uint64) error
}

// Consumer keeps a subscription open, resubscribing with backoff when it drops
type Consumer struct {
	sub     Subscriber
	handler EventHandler
	backoff *backoff.Exponential
	base    time.Duration
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewConsumer creates a stream consumer
func NewConsumer(sub Subscriber, handler EventHandler, base, max time.Duration, logger *slog.Logger) *Consumer {
	return &Consumer{
		sub:     sub,
		handler: handler,
		backoff: backoff.NewExponential(base, max, 0.2),
		base:    base,
		logger:  logger.With("component", "stream"),
		sleep:   sleepContext,
	}
}

// Run consumes until ctx is done
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("stream consumer started")

	for {
		err := c.sub.Receive(ctx, c.handle)
		if ctx.Err() != nil {
			c.logger.Info("stream consumer stopped")
			return ctx.Err()
		}

		var delay time.Duration
		if err == nil {
			c.backoff.Reset()
			delay = c.base
			c.logger.Info("subscription session ended, resubscribing", "delay", delay)
		} else {
			delay = c.backoff.Next()
			c.logger.Error("subscription stream failed, resubscribing",
				"error", err, "attempt", c.backoff.Attempts(), "delay", delay)
		}
		metrics.StreamReconnects.Inc()

		if err := c.sleep(ctx, delay); err != nil {
			c.logger.Info("stream consumer stopped")
			return err
		}
	}
}

// handle acks malformed payloads at once and valid ones after dispatch returns
func (c *Consumer) handle(ctx context.Context, d Delivery) {
	env, err := ParseEnvelope(d.Data())
	if err != nil {
		metrics.StreamMessages.WithLabelValues("malformed").Inc()
		c.logger.Warn("discarding invalid push payload", "error", err, "payload", truncate(d.Data(), 200))
		d.Ack()
		return
	}

	err = c.dispatch(ctx, env)
	var p *panicError
	switch {
	case errors.As(err, &p):
		metrics.StreamMessages.WithLabelValues("failed").Inc()
		c.logger.Error("push handler panicked, message will be redelivered", "error", err, "email", env.EmailAddress)
		d.Nack()
		return
	case err != nil:
		metrics.StreamMessages.WithLabelValues("failed").Inc()
		c.logger.Error("push event failed", "error", err, "email", env.EmailAddress, "history_id", env.HistoryID)
	default:
		metrics.StreamMessages.WithLabelValues("dispatched").Inc()
	}
	d.Ack()
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in event handler: %v", p.value)
}

func (c *Consumer) dispatch(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return c.handler.HandleEvent(ctx, env.EmailAddress, env.HistoryID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
