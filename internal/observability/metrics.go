package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_active_calls",
		Help: "Number of active phone calls",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_calls_total",
		Help: "Total number of calls processed",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_call_duration_seconds",
		Help:    "Duration of phone calls in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Transcript events by kind: interim, final, empty
	transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_transcripts_total",
		Help: "Transcript events received from the transcription service",
	}, []string{"kind"})

	// Conversation turns by outcome: replied, generation_failed, synthesis_failed, undeliverable
	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_turns_total",
		Help: "Conversation turns by outcome",
	}, []string{"outcome"})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_agent_generation_latency_seconds",
		Help:    "Reply generation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_agent_synthesis_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"status"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Turn outcomes
const (
	TurnReplied          = "replied"
	TurnGenerationFailed = "generation_failed"
	TurnSynthesisFailed  = "synthesis_failed"
	TurnUndeliverable    = "undeliverable"
)

// CallMetrics tracks metrics for a single call
type CallMetrics struct {
	startTime time.Time
}

// NewCallMetrics records the start of a call and returns its tracker
func NewCallMetrics() *CallMetrics {
	activeCalls.Inc()
	totalCalls.Inc()
	return &CallMetrics{startTime: time.Now()}
}

// RecordCallEnd records the end of a call
func (m *CallMetrics) RecordCallEnd() {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTranscript counts one transcript event
func (m *CallMetrics) RecordTranscript(kind string) {
	transcripts.WithLabelValues(kind).Inc()
}

// RecordTurn counts a finished turn
func (m *CallMetrics) RecordTurn(outcome string) {
	turns.WithLabelValues(outcome).Inc()
}

// RecordGeneration observes one reply generation started at start
func (m *CallMetrics) RecordGeneration(start time.Time, success bool) {
	generationLatency.WithLabelValues(status(success)).Observe(time.Since(start).Seconds())
}

// RecordSynthesis observes one synthesis request started at start
func (m *CallMetrics) RecordSynthesis(start time.Time, success bool) {
	synthesisLatency.WithLabelValues(status(success)).Observe(time.Since(start).Seconds())
}

// RecordError records an error
func (m *CallMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *CallMetrics) RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
