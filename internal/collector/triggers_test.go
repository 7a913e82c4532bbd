package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/hasura"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// fakeEngine serves canned run_sql rows (header row included by the
// engine, stripped by the client).
func fakeEngine(t *testing.T, rows [][]string) *hasura.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/query" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"result_type": "TuplesOk",
			"result":      append([][]string{{"trigger_name", "pending", "last_success"}}, rows...),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return hasura.NewClient(srv.URL, "secret", nil)
}

func TestCronTriggerCollectorSnapshot(t *testing.T) {
	reg := telemetry.New(nil, nil)
	c, err := NewCronTriggerCollector(reg)
	if err != nil {
		t.Fatalf("NewCronTriggerCollector: %v", err)
	}
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	client := fakeEngine(t, [][]string{
		{"nightly", "3", "2026-08-27 11:00:00+00"},
		{"hourly", "0", ""},
	})
	if err := c.Collect(context.Background(), client); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if got := testutil.ToFloat64(c.pending.WithLabelValues("nightly")); got != 3 {
		t.Errorf("nightly pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.pending.WithLabelValues("hourly")); got != 0 {
		t.Errorf("hourly pending = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.lastSuccessAge.WithLabelValues("nightly")); got != 3600 {
		t.Errorf("nightly last-success age = %v, want 3600", got)
	}
	// hourly never succeeded, so no age series exists.
	if got := testutil.CollectAndCount(c.lastSuccessAge, "hasura_cron_trigger_last_success_age_seconds"); got != 1 {
		t.Errorf("age series = %d, want 1", got)
	}
}

// A new snapshot fully replaces the old one: triggers deleted upstream
// must disappear rather than linger as ghost series.
func TestSnapshotReplacementDropsGhosts(t *testing.T) {
	reg := telemetry.New(nil, nil)
	c, err := NewEventTriggerCollector(reg)
	if err != nil {
		t.Fatalf("NewEventTriggerCollector: %v", err)
	}

	first := fakeEngine(t, [][]string{{"on_insert", "5", ""}, {"on_delete", "1", ""}})
	if err := c.Collect(context.Background(), first); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := testutil.CollectAndCount(c.pending, "hasura_event_trigger_pending_events"); got != 2 {
		t.Fatalf("pending series = %d, want 2", got)
	}

	second := fakeEngine(t, [][]string{{"on_insert", "2", ""}})
	if err := c.Collect(context.Background(), second); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := testutil.CollectAndCount(c.pending, "hasura_event_trigger_pending_events"); got != 1 {
		t.Errorf("pending series after replacement = %d, want 1", got)
	}
	if got := testutil.ToFloat64(c.pending.WithLabelValues("on_insert")); got != 2 {
		t.Errorf("on_insert pending = %v, want 2", got)
	}
}

// A failed fetch must leave the previous snapshot in place.
func TestFailedCollectRetainsPreviousSnapshot(t *testing.T) {
	reg := telemetry.New(nil, nil)
	c, err := NewEventTriggerCollector(reg)
	if err != nil {
		t.Fatalf("NewEventTriggerCollector: %v", err)
	}

	good := fakeEngine(t, [][]string{{"on_insert", "7", ""}})
	if err := c.Collect(context.Background(), good); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	if err := c.Collect(context.Background(), hasura.NewClient(broken.URL, "secret", nil)); err == nil {
		t.Fatal("Collect against broken engine succeeded")
	}
	if got := testutil.ToFloat64(c.pending.WithLabelValues("on_insert")); got != 7 {
		t.Errorf("pending after failed cycle = %v, want 7", got)
	}
}

func TestScheduledEventCollector(t *testing.T) {
	reg := telemetry.New(nil, nil)
	c, err := NewScheduledEventCollector(reg)
	if err != nil {
		t.Fatalf("NewScheduledEventCollector: %v", err)
	}
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"result_type": "TuplesOk",
			"result": [][]string{
				{"pending", "last_success"},
				{"4", "2026-08-27 11:30:00+00"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	if err := c.Collect(context.Background(), hasura.NewClient(srv.URL, "secret", nil)); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := testutil.ToFloat64(c.pending); got != 4 {
		t.Errorf("pending = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.lastSuccessAge); got != 1800 {
		t.Errorf("last-success age = %v, want 1800", got)
	}
}

func TestMetadataCollector(t *testing.T) {
	reg := telemetry.New(nil, nil)
	c, err := NewMetadataCollector(reg)
	if err != nil {
		t.Fatalf("NewMetadataCollector: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/metadata" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"is_consistent":        false,
			"inconsistent_objects": []map[string]string{{"type": "table"}, {"type": "relation"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	if err := c.Collect(context.Background(), hasura.NewClient(srv.URL, "secret", nil)); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := testutil.ToFloat64(c.inconsistent); got != 2 {
		t.Errorf("inconsistent objects = %v, want 2", got)
	}
}

func TestParsePGTime(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2026-08-27 11:00:00+00", true},
		{"2026-08-27 11:00:00.123456+00", true},
		{"2026-08-27T11:00:00Z", true},
		{"", false},
		{"not a time", false},
	}
	for _, tc := range cases {
		if _, ok := parsePGTime(tc.in); ok != tc.ok {
			t.Errorf("parsePGTime(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
	}
}

func TestRowsToSnapshots(t *testing.T) {
	snaps, err := rowsToSnapshots([][]string{
		{"a", "2", "2026-08-27 11:00:00+00"},
		{"b", "0", ""},
	})
	if err != nil {
		t.Fatalf("rowsToSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if snaps[0].Name != "a" || snaps[0].Pending != 2 || snaps[0].LastSuccessAt.IsZero() {
		t.Errorf("snapshot a = %+v", snaps[0])
	}
	if !snaps[1].LastSuccessAt.IsZero() {
		t.Errorf("snapshot b should have zero last success, got %v", snaps[1].LastSuccessAt)
	}

	if _, err := rowsToSnapshots([][]string{{"a", "x", ""}}); err == nil {
		t.Error("bad pending count accepted")
	}
	if _, err := rowsToSnapshots([][]string{{"a", "1"}}); err == nil {
		t.Error("short row accepted")
	}
}
