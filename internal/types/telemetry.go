package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency       = "APILatency"
	MetricAPIRequestCount  = "APIRequestCount"
	MetricEvaluatorFailure = "EvaluatorFailure"
	MetricHarvestCreated   = "HarvestCreated"

	// Dimension Keys
	DimMethod    = "Method"
	DimEndpoint  = "Endpoint"
	DimStatus    = "Status"
	DimEvaluator = "Evaluator"

	// Metric Namespace
	MetricNamespace = "CaneHarvest"
)

// Message attribute and event type names for the harvest event stream.
const (
	EventTypeHarvestCreated = "harvest.created"
	AttrEventType           = "event_type"
)
