package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
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

// RecordTransition counts workflow submissions by ticket type, action and outcome code.
func (m *Metrics) RecordTransition(ticketType, action, outcome string) {
	if m == nil {
		return
	}
	key := ticketType + "|" + action + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[key]++
}

// TransitionCount returns the counter for the given key parts.
func (m *Metrics) TransitionCount(ticketType, action, outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionCount[ticketType+"|"+action+"|"+outcome]
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]int64{
		"requests":    copyCounts(m.requestCount),
		"errors":      copyCounts(m.errorCount),
		"transitions": copyCounts(m.transitionCount),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
