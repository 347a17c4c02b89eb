package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech workers
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsStopped  prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Audio ingest metrics
	ChunksReceived prometheus.Counter
	BytesReceived  prometheus.Counter
	DecodeErrors   prometheus.Counter

	// Transcription metrics
	PartialsEmitted       prometheus.Counter
	FinalsEmitted         prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// Synthesis metrics
	SpeakRequests     prometheus.Counter
	AudioChunksSent   prometheus.Counter
	SynthesisDuration prometheus.Histogram

	// Protocol metrics
	CommandsReceived *prometheus.CounterVec
	ProtocolErrors   prometheus.Counter
}

// New creates all metrics under the given registerer. Passing nil registers
// against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxmlx_active_sessions",
			Help: "Current number of active sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmlx_session_duration_seconds",
			Help:    "Duration of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Audio ingest metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_audio_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_audio_bytes_received_total",
			Help: "Total number of raw PCM bytes received",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_audio_decode_errors_total",
			Help: "Total number of audio chunk decode errors",
		}),

		// Transcription metrics
		PartialsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_partials_emitted_total",
			Help: "Total number of partial transcripts emitted",
		}),
		FinalsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_finals_emitted_total",
			Help: "Total number of final transcripts emitted",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmlx_transcription_duration_seconds",
			Help:    "Wall time spent producing a transcript",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		// Synthesis metrics
		SpeakRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_speak_requests_total",
			Help: "Total number of speak_text requests",
		}),
		AudioChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_audio_chunks_sent_total",
			Help: "Total number of synthesized audio chunks sent",
		}),
		SynthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxmlx_synthesis_duration_seconds",
			Help:    "Wall time spent synthesizing one request",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		// Protocol metrics
		CommandsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxmlx_commands_received_total",
			Help: "Total number of commands received",
		}, []string{"cmd"}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxmlx_protocol_errors_total",
			Help: "Total number of error events sent to the peer",
		}),
	}
}

// RecordSessionStarted increments the session counters
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionStopped decrements active sessions and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	m.SessionsStopped.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkReceived records one accepted audio chunk
func (m *Metrics) RecordChunkReceived(sizeBytes int) {
	m.ChunksReceived.Inc()
	m.BytesReceived.Add(float64(sizeBytes))
}

// RecordDecodeError increments the chunk decode error counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordPartial increments the partial transcript counter
func (m *Metrics) RecordPartial() {
	m.PartialsEmitted.Inc()
}

// RecordFinal records a final transcript and its latency
func (m *Metrics) RecordFinal(durationSeconds float64) {
	m.FinalsEmitted.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordSpeakRequest increments the speak request counter
func (m *Metrics) RecordSpeakRequest() {
	m.SpeakRequests.Inc()
}

// RecordSynthesis records a completed synthesis and its chunk count
func (m *Metrics) RecordSynthesis(chunks int, durationSeconds float64) {
	m.AudioChunksSent.Add(float64(chunks))
	m.SynthesisDuration.Observe(durationSeconds)
}

// RecordCommand counts one received command by name
func (m *Metrics) RecordCommand(cmd string) {
	m.CommandsReceived.WithLabelValues(cmd).Inc()
}

// RecordProtocolError increments the protocol error counter
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Inc()
}
