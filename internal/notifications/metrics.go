package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names emitted to CloudWatch.
const (
	metricAPIRequest      = "APIRequest"
	metricAPILatency      = "APILatency"
	metricDeliveryAttempt = "DeliveryAttempt"
	metricDeliveryLatency = "DeliveryLatency"
	metricQueueLag        = "NotificationQueueLag"

	dimMethod   = "Method"
	dimEndpoint = "Endpoint"
	dimStatus   = "Status"
	dimEvent    = "Event"
	dimResult   = "Result"
)

// DeliveryResult labels a delivery outcome in metrics.
type DeliveryResult string

const (
	DeliverySuccess DeliveryResult = "success"
	DeliveryFailure DeliveryResult = "failure"
)

// CloudWatchMetrics emits API and delivery telemetry to CloudWatch.
// It satisfies core.MetricsCollector for the HTTP chassis and is used
// directly by the notify worker for delivery outcomes. All emission is
// best-effort: failures are logged, never propagated.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the
// given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits request count and latency metrics for one API
// request. Called by the chassis metrics middleware.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dims := []cwtypes.Dimension{
		{Name: aws.String(dimMethod), Value: aws.String(method)},
		{Name: aws.String(dimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(dimStatus), Value: aws.String(status)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricAPIRequest),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record request metric",
			slog.String("error", err.Error()),
			slog.String("endpoint", endpoint),
		)
	}
}

// RecordDelivery emits a DeliveryAttempt metric with Event and Result
// dimensions, plus the attempt latency.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, event string, result DeliveryResult, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimEvent), Value: aws.String(event)},
		{Name: aws.String(dimResult), Value: aws.String(string(result))},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims[:1],
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			slog.String("error", err.Error()),
			slog.String("event", event),
			slog.String("result", string(result)),
		)
	}
}

// RecordQueueLag emits the time between message enqueue and worker
// processing start, measuring end-to-end queue delay including backlog.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricQueueLag),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record queue lag metric",
			slog.String("error", err.Error()),
			slog.Int64("lag_ms", lag.Milliseconds()),
		)
	}
}
