package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caneharvest/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimMap(dims []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(dims))
	for _, d := range dims {
		out[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return out
}

func TestRecordRequest(t *testing.T) {
	cw := &mockCloudWatch{}
	c := NewCloudWatchCollector(cw, "", nil)

	c.RecordRequest("POST", "/harvest", "201", 1500*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	in := cw.inputs[0]
	assert.Equal(t, types.MetricNamespace, aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 2)

	count, latency := in.MetricData[0], in.MetricData[1]
	assert.Equal(t, types.MetricAPIRequestCount, aws.ToString(count.MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(count.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, count.Unit)

	assert.Equal(t, types.MetricAPILatency, aws.ToString(latency.MetricName))
	assert.Equal(t, 1500.0, aws.ToFloat64(latency.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, latency.Unit)

	want := map[string]string{"Method": "POST", "Endpoint": "/harvest", "Status": "201"}
	assert.Equal(t, want, dimMap(count.Dimensions))
	assert.Equal(t, want, dimMap(latency.Dimensions))
}

func TestRecordEvaluatorFailure(t *testing.T) {
	cw := &mockCloudWatch{}
	c := NewCloudWatchCollector(cw, "CaneHarvestTest", nil)

	c.RecordEvaluatorFailure(context.Background(), "operator_performance")

	require.Len(t, cw.inputs, 1)
	assert.Equal(t, "CaneHarvestTest", aws.ToString(cw.inputs[0].Namespace))
	d := cw.inputs[0].MetricData[0]
	assert.Equal(t, types.MetricEvaluatorFailure, aws.ToString(d.MetricName))
	assert.Equal(t, map[string]string{"Evaluator": "operator_performance"}, dimMap(d.Dimensions))
}

func TestRecordHarvestCreated(t *testing.T) {
	cw := &mockCloudWatch{}
	NewCloudWatchCollector(cw, "", nil).RecordHarvestCreated(context.Background())

	require.Len(t, cw.inputs, 1)
	d := cw.inputs[0].MetricData[0]
	assert.Equal(t, types.MetricHarvestCreated, aws.ToString(d.MetricName))
	assert.Empty(t, d.Dimensions)
}

func TestPutFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cw := &mockCloudWatch{err: errors.New("throttling")}

	c := NewCloudWatchCollector(cw, "", logger)
	assert.NotPanics(t, func() {
		c.RecordRequest("GET", "/harvests", "200", time.Millisecond)
	})

	assert.Contains(t, buf.String(), "failed to record request metrics")
	assert.Contains(t, buf.String(), "throttling")
}

func TestNopCollector(t *testing.T) {
	var c Collector = NopCollector{}
	assert.NotPanics(t, func() {
		c.RecordRequest("GET", "/", "200", time.Second)
		c.RecordEvaluatorFailure(context.Background(), "loss_threshold")
		c.RecordHarvestCreated(context.Background())
	})
}
