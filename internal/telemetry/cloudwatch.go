// Package telemetry emits service metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"caneharvest/internal/types"
)

// putTimeout bounds each PutMetricData call made outside a request context.
const putTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector is everything the service records.
type Collector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordEvaluatorFailure(ctx context.Context, evaluator string)
	RecordHarvestCreated(ctx context.Context)
}

var (
	_ Collector = (*CloudWatchCollector)(nil)
	_ Collector = NopCollector{}
)

// CloudWatchCollector publishes metrics to a CloudWatch namespace.
//
// Metrics emitted:
//   - APIRequestCount: Dims {Method, Endpoint, Status}
//   - APILatency: Dims {Method, Endpoint, Status}, milliseconds
//   - EvaluatorFailure: Dims {Evaluator}
//   - HarvestCreated: no dims
//
// Publish failures are logged and dropped.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector publishing to namespace, or to
// the default namespace when empty.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{client: client, namespace: namespace, logger: logger}
}

// RecordRequest emits the request count and latency for one API call.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	c.put(ctx, "failed to record request metrics",
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	)
}

// RecordEvaluatorFailure counts one failed rule evaluation.
func (c *CloudWatchCollector) RecordEvaluatorFailure(ctx context.Context, evaluator string) {
	c.put(ctx, "failed to record evaluator failure metric", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricEvaluatorFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEvaluator), Value: aws.String(evaluator)},
		},
	})
}

// RecordHarvestCreated counts one stored harvest.
func (c *CloudWatchCollector) RecordHarvestCreated(ctx context.Context) {
	c.put(ctx, "failed to record harvest created metric", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricHarvestCreated),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (c *CloudWatchCollector) put(ctx context.Context, failMsg string, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		types.LoggerFromContext(ctx, c.logger).Error(failMsg, "error", err.Error())
	}
}

// NopCollector discards every metric. It is used when metrics are disabled.
type NopCollector struct{}

func (NopCollector) RecordRequest(string, string, string, time.Duration) {}
func (NopCollector) RecordEvaluatorFailure(context.Context, string) {}
func (NopCollector) RecordHarvestCreated(context.Context) {}
