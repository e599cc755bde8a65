package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// recordingMetrics はHTTPMetricsのテスト用実装。
type recordingMetrics struct {
	statuses  []int
	latencies []time.Duration
}

func (m *recordingMetrics) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *recordingMetrics) RecordRequestLatency(duration time.Duration) {
	m.latencies = append(m.latencies, duration)
}

func TestMetricsMiddleware_RecordsStatusCode(t *testing.T) {
	collector := &recordingMetrics{}

	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if len(collector.statuses) != 1 {
		t.Fatalf("expected 1 recorded status, got %d", len(collector.statuses))
	}
	if collector.statuses[0] != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", collector.statuses[0])
	}
}

func TestMetricsMiddleware_DefaultsTo200WithoutWriteHeader(t *testing.T) {
	collector := &recordingMetrics{}

	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusOK {
		t.Errorf("expected recorded status 200, got %v", collector.statuses)
	}
}

func TestMetricsMiddleware_RecordsLatency(t *testing.T) {
	collector := &recordingMetrics{}

	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if len(collector.latencies) != 1 {
		t.Fatalf("expected 1 recorded latency, got %d", len(collector.latencies))
	}
	if collector.latencies[0] <= 0 {
		t.Errorf("expected positive latency, got %v", collector.latencies[0])
	}
}
