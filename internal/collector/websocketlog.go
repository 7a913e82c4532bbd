package collector

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// WebsocketLogCollector tracks subscription socket lifecycle: a gauge of
// currently open connections plus a counter of lifecycle events.
type WebsocketLogCollector struct {
	active *prometheus.GaugeVec
	events *prometheus.CounterVec
}

func NewWebsocketLogCollector(reg *telemetry.Registry) (*WebsocketLogCollector, error) {
	active, err := reg.Gauge("hasura_websocket_active_connections",
		"Currently open websocket connections.")
	if err != nil {
		return nil, err
	}
	events, err := reg.Counter("hasura_websocket_events_total",
		"Websocket lifecycle events, by event type.",
		"event")
	if err != nil {
		return nil, err
	}
	return &WebsocketLogCollector{active: active, events: events}, nil
}

func (c *WebsocketLogCollector) Name() string { return model.CollectorWebsocketLog }

func (c *WebsocketLogCollector) Kinds() []model.RecordKind {
	return []model.RecordKind{model.KindWebsocketLog}
}

func (c *WebsocketLogCollector) HandleRecord(rec model.LogRecord) error {
	var detail model.WebsocketDetail
	if err := json.Unmarshal(rec.Detail, &detail); err != nil {
		return fmt.Errorf("websocket-log detail: %w", err)
	}

	event := detail.Event.Type
	switch event {
	case model.WebsocketAccepted:
		c.active.WithLabelValues().Inc()
	case model.WebsocketClosed:
		c.active.WithLabelValues().Dec()
	case model.WebsocketRejected:
		// Rejected sockets never open, only the event counter moves.
	default:
		event = "unknown"
	}

	c.events.WithLabelValues(event).Inc()
	return nil
}
