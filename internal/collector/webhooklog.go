package collector

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// WebhookLogCollector counts auth webhook calls by status class.
type WebhookLogCollector struct {
	total *prometheus.CounterVec
}

func NewWebhookLogCollector(reg *telemetry.Registry) (*WebhookLogCollector, error) {
	total, err := reg.Counter("hasura_webhook_requests_total",
		"Auth webhook requests issued by the engine, by status class.",
		"status")
	if err != nil {
		return nil, err
	}
	return &WebhookLogCollector{total: total}, nil
}

func (c *WebhookLogCollector) Name() string { return model.CollectorWebhookLog }

func (c *WebhookLogCollector) Kinds() []model.RecordKind {
	return []model.RecordKind{model.KindWebhookLog}
}

func (c *WebhookLogCollector) HandleRecord(rec model.LogRecord) error {
	var detail model.WebhookDetail
	if err := json.Unmarshal(rec.Detail, &detail); err != nil {
		return fmt.Errorf("webhook-log detail: %w", err)
	}
	c.total.WithLabelValues(statusClass(detail.HTTPInfo.Status)).Inc()
	return nil
}
