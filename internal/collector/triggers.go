package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/hasura"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// Trigger state lives in the engine's metadata database, not in the log
// stream, so these collectors are driven entirely by poll cycles. Each
// cycle fetches a complete snapshot and rebuilds the gauges from scratch
// (Reset then Set); incremental updates would leave ghost series for
// triggers deleted upstream and drift on missed polls. A failed fetch
// returns before Reset, retaining the previous snapshot.

const cronStatsSQL = `
SELECT trigger_name,
       COUNT(*) FILTER (WHERE status = 'scheduled') AS pending,
       COALESCE(MAX(created_at) FILTER (WHERE status = 'delivered')::text, '') AS last_success
FROM hdb_catalog.hdb_cron_events
GROUP BY trigger_name;`

const eventStatsSQL = `
SELECT trigger_name,
       COUNT(*) FILTER (WHERE NOT delivered AND NOT error AND NOT archived) AS pending,
       COALESCE(MAX(created_at) FILTER (WHERE delivered)::text, '') AS last_success
FROM hdb_catalog.event_log
GROUP BY trigger_name;`

const scheduledStatsSQL = `
SELECT COUNT(*) FILTER (WHERE status = 'scheduled') AS pending,
       COALESCE(MAX(scheduled_time) FILTER (WHERE status = 'delivered')::text, '') AS last_success
FROM hdb_catalog.hdb_scheduled_events;`

// CronTriggerCollector exposes per-trigger cron event backlog and
// last-success age.
type CronTriggerCollector struct {
	pending        *prometheus.GaugeVec
	lastSuccessAge *prometheus.GaugeVec
	now            func() time.Time
}

func NewCronTriggerCollector(reg *telemetry.Registry) (*CronTriggerCollector, error) {
	pending, err := reg.Gauge("hasura_cron_trigger_pending_events",
		"Cron events waiting to be delivered, per trigger.",
		"trigger_name")
	if err != nil {
		return nil, err
	}
	age, err := reg.Gauge("hasura_cron_trigger_last_success_age_seconds",
		"Seconds since the last successfully delivered cron event, per trigger.",
		"trigger_name")
	if err != nil {
		return nil, err
	}
	return &CronTriggerCollector{pending: pending, lastSuccessAge: age, now: time.Now}, nil
}

func (c *CronTriggerCollector) Name() string { return model.CollectorCronTriggers }

func (c *CronTriggerCollector) Collect(ctx context.Context, client *hasura.Client) error {
	rows, err := client.RunSQL(ctx, cronStatsSQL)
	if err != nil {
		return err
	}
	snaps, err := rowsToSnapshots(rows)
	if err != nil {
		return err
	}
	applySnapshots(c.pending, c.lastSuccessAge, snaps, c.now())
	return nil
}

// EventTriggerCollector exposes per-trigger event delivery backlog and
// last-success age.
type EventTriggerCollector struct {
	pending        *prometheus.GaugeVec
	lastSuccessAge *prometheus.GaugeVec
	now            func() time.Time
}

func NewEventTriggerCollector(reg *telemetry.Registry) (*EventTriggerCollector, error) {
	pending, err := reg.Gauge("hasura_event_trigger_pending_events",
		"Event trigger invocations waiting to be delivered, per trigger.",
		"trigger_name")
	if err != nil {
		return nil, err
	}
	age, err := reg.Gauge("hasura_event_trigger_last_success_age_seconds",
		"Seconds since the last successfully delivered event, per trigger.",
		"trigger_name")
	if err != nil {
		return nil, err
	}
	return &EventTriggerCollector{pending: pending, lastSuccessAge: age, now: time.Now}, nil
}

func (c *EventTriggerCollector) Name() string { return model.CollectorEventTriggers }

func (c *EventTriggerCollector) Collect(ctx context.Context, client *hasura.Client) error {
	rows, err := client.RunSQL(ctx, eventStatsSQL)
	if err != nil {
		return err
	}
	snaps, err := rowsToSnapshots(rows)
	if err != nil {
		return err
	}
	applySnapshots(c.pending, c.lastSuccessAge, snaps, c.now())
	return nil
}

// ScheduledEventCollector exposes the one-off scheduled event backlog.
// One-off events have no trigger name, so the gauges are unlabeled.
type ScheduledEventCollector struct {
	pending        prometheus.Gauge
	lastSuccessAge prometheus.Gauge
	now            func() time.Time
}

func NewScheduledEventCollector(reg *telemetry.Registry) (*ScheduledEventCollector, error) {
	pendingVec, err := reg.Gauge("hasura_scheduled_events_pending",
		"One-off scheduled events waiting to be delivered.")
	if err != nil {
		return nil, err
	}
	ageVec, err := reg.Gauge("hasura_scheduled_events_last_success_age_seconds",
		"Seconds since the last successfully delivered one-off scheduled event.")
	if err != nil {
		return nil, err
	}
	return &ScheduledEventCollector{
		pending:        pendingVec.WithLabelValues(),
		lastSuccessAge: ageVec.WithLabelValues(),
		now:            time.Now,
	}, nil
}

func (c *ScheduledEventCollector) Name() string { return model.CollectorScheduledEvents }

func (c *ScheduledEventCollector) Collect(ctx context.Context, client *hasura.Client) error {
	rows, err := client.RunSQL(ctx, scheduledStatsSQL)
	if err != nil {
		return err
	}
	if len(rows) != 1 || len(rows[0]) != 2 {
		return fmt.Errorf("scheduled event stats: expected 1 row of 2 columns, got %d rows", len(rows))
	}
	pending, err := strconv.ParseFloat(rows[0][0], 64)
	if err != nil {
		return fmt.Errorf("scheduled event stats: pending count %q: %w", rows[0][0], err)
	}
	c.pending.Set(pending)
	if last, ok := parsePGTime(rows[0][1]); ok {
		c.lastSuccessAge.Set(c.now().Sub(last).Seconds())
	}
	return nil
}

// MetadataCollector exposes the count of inconsistent metadata objects.
type MetadataCollector struct {
	inconsistent prometheus.Gauge
}

func NewMetadataCollector(reg *telemetry.Registry) (*MetadataCollector, error) {
	vec, err := reg.Gauge("hasura_metadata_inconsistent_objects",
		"Number of inconsistent objects in the engine's metadata.")
	if err != nil {
		return nil, err
	}
	return &MetadataCollector{inconsistent: vec.WithLabelValues()}, nil
}

func (c *MetadataCollector) Name() string { return model.CollectorMetadataInconsistency }

func (c *MetadataCollector) Collect(ctx context.Context, client *hasura.Client) error {
	n, err := client.InconsistentMetadata(ctx)
	if err != nil {
		return err
	}
	c.inconsistent.Set(float64(n))
	return nil
}

// rowsToSnapshots decodes (trigger_name, pending, last_success) rows.
func rowsToSnapshots(rows [][]string) ([]model.TriggerSnapshot, error) {
	snaps := make([]model.TriggerSnapshot, 0, len(rows))
	for _, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("trigger stats: expected 3 columns, got %d", len(row))
		}
		pending, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("trigger stats: pending count %q: %w", row[1], err)
		}
		snap := model.TriggerSnapshot{Name: row[0], Pending: pending}
		if t, ok := parsePGTime(row[2]); ok {
			snap.LastSuccessAt = t
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// applySnapshots replaces the gauge contents with the new snapshot set.
func applySnapshots(pending, age *prometheus.GaugeVec, snaps []model.TriggerSnapshot, now time.Time) {
	pending.Reset()
	age.Reset()
	for _, snap := range snaps {
		pending.WithLabelValues(snap.Name).Set(snap.Pending)
		if !snap.LastSuccessAt.IsZero() {
			age.WithLabelValues(snap.Name).Set(now.Sub(snap.LastSuccessAt).Seconds())
		}
	}
}

// Postgres renders timestamptz in a handful of text formats depending on
// precision; try them in order.
var pgTimeLayouts = []string{
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05-07",
	time.RFC3339Nano,
	time.RFC3339,
}

func parsePGTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pgTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
