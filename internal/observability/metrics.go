package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_client_active_sessions",
		Help: "Number of active live sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_sessions_total",
		Help: "Total number of live sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_client_session_duration_seconds",
		Help:    "Duration of live sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_synthesis_requests_total",
		Help: "Total number of narration synthesis requests",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_client_synthesis_latency_seconds",
		Help:    "Narration synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Chat metrics
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_chat_requests_total",
		Help: "Total number of text chat requests",
	}, []string{"status"})

	chatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_client_chat_latency_seconds",
		Help:    "Text chat latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Narration cache metrics
	narrationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_narration_cache_hits_total",
		Help: "Narration requests served from cache",
	})

	narrationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_narration_cache_misses_total",
		Help: "Narration requests that required synthesis",
	})

	// Interrupt metrics
	interruptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_interrupts_total",
		Help: "Total number of barge-in interrupts",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_client_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single live session
type Metrics struct {
	sessionID          string
	startTime          time.Time
	synthesisStartTime time.Time
	chatStartTime      time.Time
	mu                 sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a live session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a live session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	duration := time.Since(m.startTime).Seconds()
	sessionDuration.Observe(duration)
}

// RecordSynthesisStart records the start of a narration synthesis request
func (m *Metrics) RecordSynthesisStart() {
	m.mu.Lock()
	m.synthesisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSynthesisEnd records the end of a narration synthesis request
func (m *Metrics) RecordSynthesisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synthesisStartTime.IsZero() {
		latency := time.Since(m.synthesisStartTime).Seconds()
		synthesisLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordChatStart records the start of a text chat request
func (m *Metrics) RecordChatStart() {
	m.mu.Lock()
	m.chatStartTime = time.Now()
	m.mu.Unlock()
}

// RecordChatEnd records the end of a text chat request
func (m *Metrics) RecordChatEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.chatStartTime.IsZero() {
		latency := time.Since(m.chatStartTime).Seconds()
		chatLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	chatRequests.WithLabelValues(status).Inc()
}

// RecordInterrupt records a barge-in interrupt
func (m *Metrics) RecordInterrupt() {
	interruptsTotal.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordNarrationCacheHit records a narration request served from cache
func RecordNarrationCacheHit() {
	narrationCacheHits.Inc()
}

// RecordNarrationCacheMiss records a narration request that required synthesis
func RecordNarrationCacheMiss() {
	narrationCacheMisses.Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
