package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/pipecheck/internal/version"
)

type counters struct {
	startTime   time.Time
	total       uint64
	passed      uint64
	failed      uint64
	parseErrors uint64
	cacheHits   uint64
	cacheMisses uint64
	rejected    uint64
	pgUp        bool
	mqttUp      bool
}

// metrics holds counters for the /metrics endpoint.
type metrics struct {
	mu sync.RWMutex
	counters
}

func newMetrics() *metrics {
	return &metrics{counters: counters{startTime: time.Now()}}
}

func (m *metrics) recordCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *metrics) recordVerdict(passed, parseFailed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	switch {
	case parseFailed:
		m.parseErrors++
		m.failed++
	case passed:
		m.passed++
	default:
		m.failed++
	}
}

func (m *metrics) recordRejected() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

func (m *metrics) setSinks(pgUp, mqttUp bool) {
	m.mu.Lock()
	m.pgUp, m.mqttUp = pgUp, mqttUp
	m.mu.Unlock()
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	m := s.metrics
	m.mu.RLock()
	snap := m.counters
	m.mu.RUnlock()

	mqttUp := snap.mqttUp
	if s.broker != nil {
		mqttUp = s.broker.IsConnected()
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`instance="%s",version="%s"`, hostname, version.Version)

	writeMetric("pipecheck_uptime_seconds", "gauge",
		"Number of seconds since the server started", time.Since(snap.startTime).Seconds(), labels)
	writeMetric("pipecheck_validations_total", "counter",
		"Validation runs served, excluding cache hits", snap.total, labels)
	writeMetric("pipecheck_validations_passed_total", "counter",
		"Validation runs with verdict PASS", snap.passed, labels)
	writeMetric("pipecheck_validations_failed_total", "counter",
		"Validation runs with verdict FAIL, parse errors included", snap.failed, labels)
	writeMetric("pipecheck_parse_errors_total", "counter",
		"Validation runs that stopped at the loader", snap.parseErrors, labels)
	writeMetric("pipecheck_requests_rejected_total", "counter",
		"Validation requests rejected before validation", snap.rejected, labels)
	writeMetric("pipecheck_cache_hits_total", "counter",
		"Validation requests answered from the report cache", snap.cacheHits, labels)
	writeMetric("pipecheck_cache_misses_total", "counter",
		"Validation requests that missed the report cache", snap.cacheMisses, labels)
	writeMetric("pipecheck_events_total", "counter",
		"Total number of events emitted since startup", s.bus.TotalCount(), labels)
	writeMetric("pipecheck_ws_clients", "gauge",
		"Number of active WebSocket client connections", s.bus.SubscriberCount(), labels)
	writeMetric("pipecheck_postgres_connected", "gauge",
		"Whether PostgreSQL answered the last readiness probe (1) or not (0)", boolGauge(snap.pgUp), labels)
	writeMetric("pipecheck_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqttUp), labels)
}
