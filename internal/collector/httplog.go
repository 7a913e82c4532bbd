package collector

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// HTTPLogCollector derives request counts and latency from http-log
// records, labeled by status class only (2xx..5xx) to keep cardinality
// bounded regardless of the engine's URL space.
type HTTPLogCollector struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPLogCollector(reg *telemetry.Registry) (*HTTPLogCollector, error) {
	total, err := reg.Counter("hasura_http_requests_total",
		"HTTP requests handled by the engine, by status class.",
		"status")
	if err != nil {
		return nil, err
	}
	duration, err := reg.Histogram("hasura_http_request_duration_seconds",
		"HTTP request execution time in seconds, by status class.",
		"status")
	if err != nil {
		return nil, err
	}
	return &HTTPLogCollector{total: total, duration: duration}, nil
}

func (c *HTTPLogCollector) Name() string { return model.CollectorHTTPLog }

func (c *HTTPLogCollector) Kinds() []model.RecordKind {
	return []model.RecordKind{model.KindHTTPLog}
}

func (c *HTTPLogCollector) HandleRecord(rec model.LogRecord) error {
	var detail model.HTTPDetail
	if err := json.Unmarshal(rec.Detail, &detail); err != nil {
		return fmt.Errorf("http-log detail: %w", err)
	}

	class := statusClass(detail.HTTPInfo.Status)
	c.total.WithLabelValues(class).Inc()
	if detail.Operation.QueryExecutionTime > 0 {
		c.duration.WithLabelValues(class).Observe(detail.Operation.QueryExecutionTime)
	}
	return nil
}
