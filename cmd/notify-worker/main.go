// Package main is the entrypoint for the notify worker Lambda.
//
// The worker consumes NotificationMessages from the notification SQS
// queue and delivers them as email through SendGrid. Transient failures
// are republished with backoff by the dispatcher; terminal failures are
// reported as partial batch failures so SQS redrives the originals to
// the dead-letter queue.
//
// With APP_ENV=local the worker reads one JSON-encoded SQS event from
// stdin and processes it, which allows local testing without the Lambda
// runtime emulator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"teamnetwork/internal/config"
	"teamnetwork/internal/external"
	"teamnetwork/internal/notifications"
	"teamnetwork/internal/types"
)

// Handler holds the worker's long-lived dependencies, constructed once
// per cold start.
type Handler struct {
	dispatcher *notifications.Dispatcher
	logger     *slog.Logger
}

// Handle processes one SQS event. Messages are dispatched concurrently;
// IDs of terminally-failed messages come back as partial batch failures
// so SQS retries only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	msgs := make([]types.NotificationMessage, 0, len(sqsEvent.Records))
	recordIDs := make(map[string]string, len(sqsEvent.Records))

	for _, record := range sqsEvent.Records {
		var msg types.NotificationMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			// A malformed body will never parse on retry; ACK it.
			h.logger.Error("dropping unparseable notification message",
				slog.String("sqs_message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			continue
		}
		msgs = append(msgs, msg)
		recordIDs[msg.ID] = record.MessageId
	}

	failed := h.dispatcher.DispatchBatch(ctx, msgs)

	response := events.SQSEventResponse{}
	for _, id := range failed {
		if sqsID, ok := recordIDs[id]; ok {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: sqsID},
			)
		}
	}
	return response, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// The worker reads its few settings from the environment directly;
	// it has no use for the API's full config surface. Secrets tagged
	// with an _SSM_PARAM suffix are resolved into the environment first.
	region := os.Getenv("AWS_REGION")
	if err := config.ResolveSecrets(config.NewSSMProvider(region)); err != nil {
		logger.Error("failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	queueURL := os.Getenv("SQS_NOTIFICATIONS")
	namespace := os.Getenv("METRIC_NAMESPACE")
	if namespace == "" {
		namespace = "TeamNetwork"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	mailer := external.NewSendGridMailer(&http.Client{Timeout: 20 * time.Second}, external.SendGridMailerConfig{
		APIKey:      os.Getenv("SENDGRID_API_KEY"),
		FromAddress: envOrDefault("EMAIL_FROM_ADDRESS", "no-reply@myteamnetwork.com"),
		FromName:    envOrDefault("EMAIL_FROM_NAME", "TeamNetwork"),
		Logger:      logger,
	})

	publisher := notifications.NewPublisher(sqs.NewFromConfig(awsCfg), queueURL, logger)
	metrics := notifications.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), namespace, logger)
	dispatcher := notifications.NewDispatcher(mailer, publisher, metrics, logger)

	handler := &Handler{dispatcher: dispatcher, logger: logger}

	logger.Info("notify worker initialized",
		"notification_queue", queueURL,
		"metric_namespace", namespace,
	)

	if os.Getenv("APP_ENV") == "local" {
		if err := runLocal(handler, logger); err != nil {
			logger.Error("local run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal reads a single SQS event from stdin and processes it.
func runLocal(handler *Handler, logger *slog.Logger) error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing SQS event: %w", err)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		return err
	}
	logger.Info("local run complete",
		"records", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
