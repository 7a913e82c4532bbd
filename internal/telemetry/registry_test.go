package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterRegisterAndReuse(t *testing.T) {
	reg := New(nil, nil)

	c1, err := reg.Counter("adapter_test_total", "help", "label")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	c2, err := reg.Counter("adapter_test_total", "help", "label")
	if err != nil {
		t.Fatalf("Counter (second): %v", err)
	}
	if c1 != c2 {
		t.Error("second registration returned a different vec")
	}

	c1.WithLabelValues("a").Inc()
	if got := testutil.ToFloat64(c2.WithLabelValues("a")); got != 1 {
		t.Errorf("counter = %v, want 1", got)
	}
}

func TestKindConflict(t *testing.T) {
	reg := New(nil, nil)

	if _, err := reg.Counter("adapter_conflict", "help"); err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if _, err := reg.Gauge("adapter_conflict", "help"); !errors.Is(err, ErrKindConflict) {
		t.Errorf("Gauge on counter name: err = %v, want ErrKindConflict", err)
	}

	// Same kind, different label set is also a conflict.
	if _, err := reg.Counter("adapter_conflict", "help", "extra"); !errors.Is(err, ErrKindConflict) {
		t.Errorf("Counter with different labels: err = %v, want ErrKindConflict", err)
	}
}

func TestConstLabelsAppearInGather(t *testing.T) {
	reg := New(map[string]string{"cluster": "test"}, nil)

	c, err := reg.Counter("adapter_labeled_total", "help")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	c.WithLabelValues().Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("families = %d, want 1", len(families))
	}
	labels := families[0].GetMetric()[0].GetLabel()
	found := false
	for _, l := range labels {
		if l.GetName() == "cluster" && l.GetValue() == "test" {
			found = true
		}
	}
	if !found {
		t.Errorf("const label cluster=test missing from %v", labels)
	}
}

func TestHistogramUsesConfiguredBuckets(t *testing.T) {
	reg := New(nil, []float64{0.1, 1, 10})

	h, err := reg.Histogram("adapter_duration_seconds", "help")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	h.WithLabelValues().Observe(0.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	hist := families[0].GetMetric()[0].GetHistogram()
	if got := len(hist.GetBucket()); got != 3 {
		t.Errorf("bucket count = %d, want 3", got)
	}
	if got := hist.GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

// Concurrent accumulation against concurrent snapshots must never
// produce a torn or decreasing counter value.
func TestConcurrentAccumulateAndGather(t *testing.T) {
	reg := New(nil, nil)
	c, err := reg.Counter("adapter_concurrent_total", "help", "worker")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			cell := c.WithLabelValues(fmt.Sprintf("w%d", w))
			for i := 0; i < perWorker; i++ {
				cell.Inc()
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	var last float64
	for alive := true; alive; {
		select {
		case <-done:
			alive = false
		default:
		}
		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather during accumulation: %v", err)
		}
		var total float64
		for _, f := range families {
			for _, m := range f.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
		if total < last {
			t.Fatalf("observed decreasing total: %v after %v", total, last)
		}
		last = total
	}

	if want := float64(workers * perWorker); last != want {
		t.Errorf("final total = %v, want %v", last, want)
	}
}
