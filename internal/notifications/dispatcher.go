package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"teamnetwork/internal/types"
)

// Mailer delivers a single email. Satisfied by external.SendGridMailer.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DeliveryMetrics is the metrics surface the dispatcher records to,
// satisfied by *CloudWatchMetrics.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, event string, result DeliveryResult, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// defaultMaxRetries bounds redelivery before a message is surfaced as
// failed and left to the queue's dead-letter redrive.
const defaultMaxRetries = 5

// retryBaseDelay is the backoff unit; attempt n waits base * 2^n,
// clamped by the publisher to the SQS delay ceiling.
const retryBaseDelay = 30 * time.Second

// dispatchConcurrency caps parallel deliveries within one batch.
const dispatchConcurrency = 4

// Dispatcher consumes queued NotificationMessages and delivers them via
// the Mailer. Transient failures are republished with exponential
// backoff until the retry budget is exhausted.
type Dispatcher struct {
	mailer     Mailer
	publisher  MessagePublisher
	metrics    DeliveryMetrics
	maxRetries int
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil metrics collector disables
// metric emission.
func NewDispatcher(mailer Mailer, publisher MessagePublisher, metrics DeliveryMetrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer:     mailer,
		publisher:  publisher,
		metrics:    metrics,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
}

// Dispatch delivers one message. On transient failure it republishes
// with backoff and reports success to the queue (the retry lives in the
// new message); once retries are exhausted it returns the error so the
// queue's redrive policy moves the original to the DLQ.
func (d *Dispatcher) Dispatch(ctx context.Context, msg types.NotificationMessage) error {
	if d.metrics != nil && !msg.EnqueuedAt.IsZero() {
		d.metrics.RecordQueueLag(ctx, time.Since(msg.EnqueuedAt))
	}

	start := time.Now()
	err := d.mailer.Send(ctx, msg.RecipientEmail, msg.Subject, msg.Body)
	elapsed := time.Since(start)

	if err == nil {
		if d.metrics != nil {
			d.metrics.RecordDelivery(ctx, string(msg.Event), DeliverySuccess, elapsed)
		}
		d.logger.Info("notification delivered",
			slog.String("notification_id", msg.ID),
			slog.String("event", string(msg.Event)),
			slog.Duration("duration", elapsed),
		)
		return nil
	}

	if d.metrics != nil {
		d.metrics.RecordDelivery(ctx, string(msg.Event), DeliveryFailure, elapsed)
	}

	if msg.RetryCount >= d.maxRetries {
		d.logger.Error("notification delivery failed permanently",
			slog.String("notification_id", msg.ID),
			slog.String("event", string(msg.Event)),
			slog.Int("retry_count", msg.RetryCount),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delivery of %s failed after %d attempts: %w", msg.ID, msg.RetryCount, err)
	}

	delay := retryBaseDelay * (1 << msg.RetryCount)
	d.logger.Warn("notification delivery failed, scheduling retry",
		slog.String("notification_id", msg.ID),
		slog.Int("retry_count", msg.RetryCount),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)

	if pubErr := d.publisher.Publish(ctx, msg, delay); pubErr != nil {
		// Could not requeue either; fail the record so SQS redelivers
		// the original.
		return fmt.Errorf("delivery failed and requeue failed for %s: %w", msg.ID, pubErr)
	}
	return nil
}

// DispatchBatch processes a batch of messages concurrently and returns
// the IDs of messages that failed terminally, for partial-batch
// reporting to SQS.
func (d *Dispatcher) DispatchBatch(ctx context.Context, msgs []types.NotificationMessage) []string {
	var failed []string
	results := make([]error, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			results[i] = d.Dispatch(gctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if err != nil {
			failed = append(failed, msgs[i].ID)
		}
	}
	return failed
}
