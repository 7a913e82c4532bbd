// Package poller drives the admin API snapshot collectors on a fixed
// interval.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/collector"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/hasura"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// Poller runs every enabled snapshot collector once per interval.
// Cycles run inline in the tick loop, so a cycle still in flight when the
// next tick fires causes that tick to be dropped, never queued. A failed
// collector keeps its previous gauges (it aborts before resetting them)
// and is retried on the next cycle.
type Poller struct {
	client   *hasura.Client
	set      *collector.Set
	interval time.Duration
	log      *zap.Logger

	failures     *prometheus.CounterVec
	authFailures prometheus.Counter
}

// New wires the poller's health counters into the registry.
func New(reg *telemetry.Registry, client *hasura.Client, set *collector.Set, interval time.Duration, log *zap.Logger) (*Poller, error) {
	failures, err := reg.Counter("hasura_metadata_poll_failures_total",
		"Failed admin API poll attempts, by collector.",
		"collector")
	if err != nil {
		return nil, err
	}
	authFailuresVec, err := reg.Counter("hasura_metadata_auth_failures_total",
		"Admin API requests rejected for bad credentials.")
	if err != nil {
		return nil, err
	}
	return &Poller{
		client:       client,
		set:          set,
		interval:     interval,
		log:          log,
		failures:     failures,
		authFailures: authFailuresVec.WithLabelValues(),
	}, nil
}

// Run polls until the context is cancelled. The first cycle runs
// immediately so gauges are populated before the first scrape interval
// elapses.
func (p *Poller) Run(ctx context.Context) {
	if len(p.set.SnapshotCollectors()) == 0 {
		p.log.Info("no snapshot collectors enabled, poller idle")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs each enabled collector once. A single failing collector
// does not stop the others.
func (p *Poller) cycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	for _, c := range p.set.SnapshotCollectors() {
		if cycleCtx.Err() != nil {
			return
		}
		if err := c.Collect(cycleCtx, p.client); err != nil {
			p.failures.WithLabelValues(c.Name()).Inc()
			if errors.Is(err, hasura.ErrUnauthorized) {
				p.authFailures.Inc()
				p.log.Error("admin API rejected credentials, check the configured admin secret",
					zap.String("collector", c.Name()), zap.Error(err))
				continue
			}
			p.log.Warn("poll cycle failed, keeping previous snapshot",
				zap.String("collector", c.Name()), zap.Error(err))
		}
	}
}
