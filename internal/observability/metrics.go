package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	totalLatency map[string]time.Duration
	startedAt    time.Time
}

// RequestStat aggregates one route, method and status combination.
type RequestStat struct {
	Route        string  `json:"route"`
	Method       string  `json:"method"`
	Status       int     `json:"status"`
	Count        int64   `json:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ErrorStat counts domain error codes per route.
type ErrorStat struct {
	Route  string `json:"route"`
	Method string `json:"method"`
	Code   string `json:"code"`
	Count  int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Requests      []RequestStat `json:"requests"`
	Errors        []ErrorStat   `json:"errors"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		totalLatency: make(map[string]time.Duration),
		startedAt:    time.Now(),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalLatency[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Requests:      make([]RequestStat, 0, len(m.requestCount)),
		Errors:        make([]ErrorStat, 0, len(m.errorCount)),
	}
	for key, count := range m.requestCount {
		parts := strings.SplitN(key, "|", 3)
		status, _ := strconv.Atoi(parts[2])
		avg := float64(m.totalLatency[key].Microseconds()) / float64(count) / 1000
		snap.Requests = append(snap.Requests, RequestStat{
			Route: parts[0], Method: parts[1], Status: status, Count: count, AvgLatencyMs: avg,
		})
	}
	for key, count := range m.errorCount {
		parts := strings.SplitN(key, "|", 3)
		snap.Errors = append(snap.Errors, ErrorStat{Route: parts[0], Method: parts[1], Code: parts[2], Count: count})
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
