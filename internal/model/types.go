package model

import (
	"encoding/json"
	"time"
)

// RecordKind identifies the category of a decoded engine log line.
// The engine tags every line with a "type" field; kinds outside this
// enumeration are bucketed as KindUnknown and ignored by dispatch.
type RecordKind string

const (
	KindQueryLog     RecordKind = "query-log"
	KindHTTPLog      RecordKind = "http-log"
	KindWebhookLog   RecordKind = "webhook-log"
	KindWebsocketLog RecordKind = "websocket-log"
	KindUnknown      RecordKind = "unknown"
)

// ParseRecordKind maps the engine's "type" field onto a RecordKind.
func ParseRecordKind(s string) RecordKind {
	switch RecordKind(s) {
	case KindQueryLog, KindHTTPLog, KindWebhookLog, KindWebsocketLog:
		return RecordKind(s)
	default:
		return KindUnknown
	}
}

// LogRecord is one decoded line from the tailed engine log.
// Detail stays raw until the matching collector decodes it; a record is
// dispatched at most once per collector and discarded afterwards.
type LogRecord struct {
	Kind      RecordKind      `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Detail    json.RawMessage `json:"detail"`
}

// QueryDetail is the payload of a query-log record.
type QueryDetail struct {
	OperationName string          `json:"operation_name"`
	OperationType string          `json:"operation_type"`
	ExecutionTime float64         `json:"execution_time"` // seconds
	Error         json.RawMessage `json:"error"`          // present on failed operations
	RequestID     string          `json:"request_id"`
}

// HTTPDetail is the payload of an http-log record.
type HTTPDetail struct {
	HTTPInfo struct {
		Status int    `json:"status"`
		Method string `json:"method"`
		URL    string `json:"url"`
	} `json:"http_info"`
	Operation struct {
		QueryExecutionTime float64 `json:"query_execution_time"` // seconds
		ResponseSize       int64   `json:"response_size"`
		RequestID          string  `json:"request_id"`
	} `json:"operation"`
}

// WebhookDetail is the payload of a webhook-log record.
type WebhookDetail struct {
	HTTPInfo struct {
		Status int    `json:"status"`
		URL    string `json:"url"`
	} `json:"http_info"`
}

// Websocket lifecycle event types emitted by the engine.
const (
	WebsocketAccepted = "accepted"
	WebsocketRejected = "rejected"
	WebsocketClosed   = "closed"
)

// WebsocketDetail is the payload of a websocket-log record.
type WebsocketDetail struct {
	Event struct {
		Type string `json:"type"`
	} `json:"event"`
}

// TriggerSnapshot is a point-in-time description of one configured
// trigger, produced whole by a poll cycle. A cycle always yields a
// complete set of snapshots; partial merges would leave ghost entries
// for triggers deleted upstream.
type TriggerSnapshot struct {
	Name          string
	Pending       float64
	LastSuccessAt time.Time // zero = never succeeded
}
