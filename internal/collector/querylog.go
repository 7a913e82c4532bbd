package collector

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// QueryLogCollector derives GraphQL operation counts and execution time
// from query-log records. Labels are bounded: operation type is one of
// the GraphQL operation kinds, outcome is success or error. Operation
// names and query text never become labels.
type QueryLogCollector struct {
	total    *prometheus.CounterVec
	execTime *prometheus.HistogramVec
}

func NewQueryLogCollector(reg *telemetry.Registry) (*QueryLogCollector, error) {
	total, err := reg.Counter("hasura_query_total",
		"GraphQL operations processed, by operation type and outcome.",
		"operation_type", "status")
	if err != nil {
		return nil, err
	}
	execTime, err := reg.Histogram("hasura_query_execution_seconds",
		"GraphQL operation execution time in seconds.",
		"operation_type")
	if err != nil {
		return nil, err
	}
	return &QueryLogCollector{total: total, execTime: execTime}, nil
}

func (c *QueryLogCollector) Name() string { return model.CollectorQueryLog }

func (c *QueryLogCollector) Kinds() []model.RecordKind {
	return []model.RecordKind{model.KindQueryLog}
}

func (c *QueryLogCollector) HandleRecord(rec model.LogRecord) error {
	var detail model.QueryDetail
	if err := json.Unmarshal(rec.Detail, &detail); err != nil {
		return fmt.Errorf("query-log detail: %w", err)
	}

	opType := operationType(detail.OperationType)
	status := "success"
	if hasError(detail.Error) {
		status = "error"
	}

	c.total.WithLabelValues(opType, status).Inc()
	if detail.ExecutionTime > 0 {
		c.execTime.WithLabelValues(opType).Observe(detail.ExecutionTime)
	}
	return nil
}

// operationType bounds the operation type label to the GraphQL kinds.
func operationType(s string) string {
	switch s {
	case "query", "mutation", "subscription":
		return s
	default:
		return "unknown"
	}
}

// hasError reports whether the detail's error field carries a value.
func hasError(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
