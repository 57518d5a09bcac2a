package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"locagest/internal/amqp"
)

// Invalidator drops cached summaries named by a message.
type Invalidator interface {
	ApplyInvalidation(msg *amqp.SummariesInvalidatedMessage) int
}

// Consumer delivers invalidation messages until ctx is done.
type Consumer interface {
	ConsumeSummariesInvalidated(ctx context.Context, handler func(*amqp.SummariesInvalidatedMessage) error) error
}

// InvalidationWorker keeps this process's summary cache in step with
// writes made by other processes.
type InvalidationWorker struct {
	target Invalidator
}

func NewInvalidationWorker(target Invalidator) *InvalidationWorker {
	return &InvalidationWorker{target: target}
}

// HandleMessage applies one invalidation.
func (w *InvalidationWorker) HandleMessage(ctx context.Context, msg *amqp.SummariesInvalidatedMessage) error {
	if msg == nil {
		return errors.New("nil invalidation message")
	}
	removed := w.target.ApplyInvalidation(msg)
	slog.InfoContext(ctx, "Summaries invalidated",
		"reason", msg.Reason,
		"run_id", msg.RunID,
		"contracts", len(msg.ContractIDs),
		"all", msg.All(),
		"removed", removed)
	return nil
}

// Run consumes until ctx is cancelled. Cancellation is a clean stop.
func (w *InvalidationWorker) Run(ctx context.Context, consumer Consumer) error {
	err := consumer.ConsumeSummariesInvalidated(ctx, func(msg *amqp.SummariesInvalidatedMessage) error {
		return w.HandleMessage(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume invalidations: %w", err)
	}
	return nil
}
