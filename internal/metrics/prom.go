package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "voicerelay_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "relay"},
		},
		[]string{"date", "sha", "version"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerelay_requests_total",
			Help: "Relay requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	generateEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerelay_generate_events_total",
			Help: "Upstream generation lines by disposition",
		},
		[]string{"kind"},
	)

	modelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerelay_model_tokens_total",
			Help: "Tokens reported by the upstream per model",
		},
		[]string{"model", "kind"},
	)

	audioBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicerelay_tts_audio_bytes_total",
			Help: "Synthesized audio bytes sent to clients",
		},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicerelay_upstream_duration_seconds",
			Help:    "Duration of upstream calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)
)

// Event dispositions for RecordGenerateEvent.
const (
	EventRelayed = "relayed"
	EventSkipped = "skipped"
	EventError   = "error"
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, requests, generateEvents, modelTokens, audioBytes, upstreamDuration)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordRequest increments the request counter for endpoint.
func RecordRequest(endpoint string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	requests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordGenerateEvent counts one upstream generation line.
func RecordGenerateEvent(kind string) {
	generateEvents.WithLabelValues(kind).Inc()
}

// RecordModelTokens increments token counters for a model.
func RecordModelTokens(model, kind string, n uint64) {
	modelTokens.WithLabelValues(model, kind).Add(float64(n))
}

// RecordAudioBytes adds n to the audio byte counter.
func RecordAudioBytes(n int) {
	audioBytes.Add(float64(n))
}

// ObserveUpstream records the duration of an upstream call.
func ObserveUpstream(upstream string, d time.Duration) {
	upstreamDuration.WithLabelValues(upstream).Observe(d.Seconds())
}
