// Package ingest decodes tailed engine log lines and routes them to the
// enabled collectors.
package ingest

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/collector"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// Processor consumes raw envelopes, decodes them into LogRecords and
// dispatches each record to the collectors declared for its kind.
// Decode failures are counted and dropped; they never stop the stream.
type Processor struct {
	set *collector.Set
	log *zap.Logger

	lines       *prometheus.CounterVec
	parseErrors prometheus.Counter
}

// NewProcessor wires the processor's own counters into the registry.
func NewProcessor(reg *telemetry.Registry, set *collector.Set, log *zap.Logger) (*Processor, error) {
	lines, err := reg.Counter("hasura_log_lines_total",
		"Log lines decoded from the engine log, by record kind.",
		"type")
	if err != nil {
		return nil, err
	}
	parseErrorsVec, err := reg.Counter("hasura_log_parse_errors_total",
		"Log lines dropped because they could not be decoded.")
	if err != nil {
		return nil, err
	}
	return &Processor{
		set:         set,
		log:         log,
		lines:       lines,
		parseErrors: parseErrorsVec.WithLabelValues(),
	}, nil
}

// Run drains the line channel until it closes.
func (p *Processor) Run(lines <-chan model.IngestEnvelope) {
	for env := range lines {
		p.ProcessLine(env)
	}
}

// ProcessLine handles one raw log line.
func (p *Processor) ProcessLine(env model.IngestEnvelope) {
	var raw struct {
		Type      string          `json:"type"`
		Timestamp string          `json:"timestamp"`
		Level     string          `json:"level"`
		Detail    json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(env.Line), &raw); err != nil {
		p.parseErrors.Inc()
		p.log.Debug("dropping malformed log line", zap.Error(err))
		return
	}

	kind := model.ParseRecordKind(raw.Type)
	p.lines.WithLabelValues(string(kind)).Inc()
	if kind == model.KindUnknown {
		// Unrecognized kinds are expected engine chatter, not errors.
		return
	}

	rec := model.LogRecord{
		Kind:   kind,
		Level:  raw.Level,
		Detail: raw.Detail,
	}
	for _, c := range p.set.ForKind(kind) {
		if err := c.HandleRecord(rec); err != nil {
			p.parseErrors.Inc()
			p.log.Debug("collector rejected record",
				zap.String("collector", c.Name()), zap.Error(err))
		}
	}
}
