package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *telemetry.Registry, *gin.Engine) {
	t.Helper()
	reg := telemetry.New(nil, nil)

	srv := NewServer("", reg)
	srv.startTime = time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(reg.Handler()))
	r.GET("/healthz", srv.handleHealth)

	return srv, reg, r
}

func TestMetricsEndpointExposition(t *testing.T) {
	_, reg, r := newTestServer(t)

	c, err := reg.Counter("hasura_test_requests_total", "Test requests.", "status")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	c.WithLabelValues("2xx").Inc()
	c.WithLabelValues("2xx").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()

	if !strings.Contains(body, "# HELP hasura_test_requests_total Test requests.") {
		t.Error("HELP line missing from exposition")
	}
	if !strings.Contains(body, "# TYPE hasura_test_requests_total counter") {
		t.Error("TYPE line missing from exposition")
	}
	if !strings.Contains(body, `hasura_test_requests_total{status="2xx"} 2`) {
		t.Errorf("sample line missing from exposition:\n%s", body)
	}
}

func TestMetricsEndpointEmptyRegistry(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestConcurrentScrapes(t *testing.T) {
	_, reg, r := newTestServer(t)

	c, err := reg.Counter("hasura_busy_total", "help")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.WithLabelValues().Inc()
			}
		}
	}()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("concurrent scrape status = %d", w.Code)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent scrapes did not finish")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal healthz: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz status = %v, want ok", body["status"])
	}
}

func TestStartAndStop(t *testing.T) {
	reg := telemetry.New(nil, nil)
	srv := NewServer("127.0.0.1:0", reg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
