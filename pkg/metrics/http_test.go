package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("/api/v1/conversations/{conversationId}", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest("/api/v1/conversations/{conversationId}", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got, err := fetchCounterValue(mfs, "http_requests_total",
		"route", "/api/v1/conversations/{conversationId}", "method", "GET", "code", "200")
	if err != nil || got != 2 {
		t.Fatalf("expected 2 requests, got %v err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "unmatched", "code", "404"); err != nil || got != 1 {
		t.Fatalf("expected unmatched route label, got %v err=%v", got, err)
	}
	sum, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/v1/conversations/{conversationId}")
	if err != nil || sum < 0.049 || sum > 0.051 {
		t.Fatalf("unexpected latency sum %v err=%v", sum, err)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("/x", http.MethodGet, http.StatusOK, time.Second)
	if NewHTTPMetrics(nil) != nil {
		t.Fatal("nil registerer should yield nil metrics")
	}
}
