// Package collector turns telemetry inputs into metric updates.
//
// Two capability sets exist: log collectors consume decoded records from
// the tailed engine log, snapshot collectors consume trigger state
// fetched from the admin API each poll cycle. Collectors hold no metric
// state of their own; everything accumulates in the telemetry registry.
package collector

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/hasura"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// LogCollector consumes records of its declared kinds from the log stream.
type LogCollector interface {
	Name() string
	Kinds() []model.RecordKind
	HandleRecord(rec model.LogRecord) error
}

// SnapshotCollector recomputes its gauges from a full admin API snapshot.
// A failed Collect leaves the previous values in place.
type SnapshotCollector interface {
	Name() string
	Collect(ctx context.Context, client *hasura.Client) error
}

// Set holds the collectors enabled for this process. Exclusion is
// resolved once at construction; excluded variants are never built, so
// their families never appear in the exposition output.
type Set struct {
	logCollectors      []LogCollector
	snapshotCollectors []SnapshotCollector
	byKind             map[model.RecordKind][]LogCollector
}

// NewSet builds every collector variant not present in excluded.
func NewSet(reg *telemetry.Registry, excluded map[string]bool) (*Set, error) {
	s := &Set{byKind: make(map[model.RecordKind][]LogCollector)}

	type logBuilder struct {
		name  string
		build func(*telemetry.Registry) (LogCollector, error)
	}
	logBuilders := []logBuilder{
		{model.CollectorQueryLog, func(r *telemetry.Registry) (LogCollector, error) { return NewQueryLogCollector(r) }},
		{model.CollectorHTTPLog, func(r *telemetry.Registry) (LogCollector, error) { return NewHTTPLogCollector(r) }},
		{model.CollectorWebhookLog, func(r *telemetry.Registry) (LogCollector, error) { return NewWebhookLogCollector(r) }},
		{model.CollectorWebsocketLog, func(r *telemetry.Registry) (LogCollector, error) { return NewWebsocketLogCollector(r) }},
	}
	for _, b := range logBuilders {
		if excluded[b.name] {
			continue
		}
		c, err := b.build(reg)
		if err != nil {
			return nil, fmt.Errorf("building collector %s: %w", b.name, err)
		}
		s.logCollectors = append(s.logCollectors, c)
		for _, k := range c.Kinds() {
			s.byKind[k] = append(s.byKind[k], c)
		}
	}

	type snapBuilder struct {
		name  string
		build func(*telemetry.Registry) (SnapshotCollector, error)
	}
	snapBuilders := []snapBuilder{
		{model.CollectorCronTriggers, func(r *telemetry.Registry) (SnapshotCollector, error) { return NewCronTriggerCollector(r) }},
		{model.CollectorEventTriggers, func(r *telemetry.Registry) (SnapshotCollector, error) { return NewEventTriggerCollector(r) }},
		{model.CollectorScheduledEvents, func(r *telemetry.Registry) (SnapshotCollector, error) { return NewScheduledEventCollector(r) }},
		{model.CollectorMetadataInconsistency, func(r *telemetry.Registry) (SnapshotCollector, error) { return NewMetadataCollector(r) }},
	}
	for _, b := range snapBuilders {
		if excluded[b.name] {
			continue
		}
		c, err := b.build(reg)
		if err != nil {
			return nil, fmt.Errorf("building collector %s: %w", b.name, err)
		}
		s.snapshotCollectors = append(s.snapshotCollectors, c)
	}

	return s, nil
}

// ForKind returns the enabled log collectors consuming the given kind.
func (s *Set) ForKind(kind model.RecordKind) []LogCollector {
	return s.byKind[kind]
}

// SnapshotCollectors returns the enabled poll-driven collectors.
func (s *Set) SnapshotCollectors() []SnapshotCollector {
	return s.snapshotCollectors
}

// LogCollectors returns the enabled log-driven collectors.
func (s *Set) LogCollectors() []LogCollector {
	return s.logCollectors
}

// statusClass buckets an HTTP status code into a bounded label value.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", code/100)
}
