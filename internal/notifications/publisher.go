// Package notifications implements the event fan-out path: domain
// handlers publish NotificationMessages to SQS, and the notify worker
// consumes the queue and delivers email. CloudWatch metrics cover both
// the API request path and delivery outcomes.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"teamnetwork/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// maxSQSDelay is the SQS DelaySeconds ceiling (15 minutes).
const maxSQSDelay = 900

// Publisher wraps an SQS client to publish NotificationMessages for
// initial dispatch or retry.
//
// The key contract: Publish increments msg.RetryCount BEFORE
// serializing to JSON, so the downstream consumer sees an accurate
// attempt number and can apply correct backoff or give up at the max.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher targeting the notification queue.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish increments the message's RetryCount, serializes it to JSON,
// and sends it to the notification queue with the specified delay.
// Delays beyond the SQS 900-second ceiling are clamped.
func (p *Publisher) Publish(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error {
	msg.RetryCount++
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification publisher: failed to marshal message: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > maxSQSDelay {
		delaySec = maxSQSDelay
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notification publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("notification message published",
		slog.String("notification_id", msg.ID),
		slog.String("event", string(msg.Event)),
		slog.String("organization_id", msg.OrganizationID),
		slog.Int("retry_count", msg.RetryCount),
		slog.Int("delay_seconds", int(delaySec)),
	)

	return nil
}
