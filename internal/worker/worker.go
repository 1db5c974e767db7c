package worker

import (
	"context"
	"time"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StockProjector applies ledger events to the stock snapshot cache.
type StockProjector interface {
	ApplyProductCreated(ctx context.Context, event *models.ProductCreatedEvent) error
	ApplyStockChanged(ctx context.Context, event *models.StockChangedEvent) error
}

// StockProjectionWorker keeps the stock cache in step with the event stream.
type StockProjectionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	maxTries     uint
	backOff      func() backoff.BackOff
}

// NewStockProjectionWorker creates a new projection worker
func NewStockProjectionWorker(consumer *broker.Consumer, projector StockProjector) *StockProjectionWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnProductCreated(projector.ApplyProductCreated)
	eventHandler.OnStockChanged(projector.ApplyStockChanged)

	return &StockProjectionWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		maxTries:     5,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// Start consumes until ctx is cancelled.
func (w *StockProjectionWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting stock projection worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

// Stop stops the worker
func (w *StockProjectionWorker) Stop() error {
	util.GetLogger().Info("Stopping stock projection worker")
	return w.consumer.Close()
}

// handle retries transient projection failures before giving the message
// back to the consumer loop uncommitted.
func (w *StockProjectionWorker) handle(ctx context.Context, msg kafka.Message) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := w.eventHandler.HandleMessage(ctx, msg)
		if err != nil && attempt > 1 {
			util.GetLogger().Warn("Projection retry failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return struct{}{}, err
	}, backoff.WithBackOff(w.backOff()), backoff.WithMaxTries(w.maxTries))
	return err
}
