/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages reported in stage_duration_seconds
const (
	StageIngest     = "ingest"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
	StageTurn       = "turn"
)

// Metrics holds every Prometheus collector of the voice chat service
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal      *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	SilenceFallback prometheus.Counter

	// Audio metrics
	AudioDuration prometheus.Histogram
	AudioChunks   prometheus.Histogram

	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsEnded  *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a dedicated registry so several
// instances can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_turns_total",
			Help: "Total number of processed turns by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicechat_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_stage_errors_total",
			Help: "Total number of pipeline failures by reason",
		}, []string{"reason"}),
		SilenceFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_tts_silence_fallback_total",
			Help: "Total number of replies voiced with the silence fallback",
		}),

		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicechat_recording_duration_seconds",
			Help:    "Duration of submitted recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),
		AudioChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicechat_recording_chunks",
			Help:    "Number of transcription chunks per recording",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicechat_active_sessions",
			Help: "Current number of open sessions",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_sessions_ended_total",
			Help: "Total number of ended sessions by cause",
		}, []string{"cause"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicechat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageError counts a failure under its error reason
func (m *Metrics) RecordStageError(reason string) {
	m.StageErrors.WithLabelValues(reason).Inc()
}

// RecordTurn counts a finished turn
func (m *Metrics) RecordTurn(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordSilenceFallback counts a reply voiced with silence
func (m *Metrics) RecordSilenceFallback() {
	m.SilenceFallback.Inc()
}

// RecordRecording records the size of a submitted recording
func (m *Metrics) RecordRecording(duration time.Duration, chunks int) {
	m.AudioDuration.Observe(duration.Seconds())
	m.AudioChunks.Observe(float64(chunks))
}

// SetActiveSessions sets the open session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionEnded counts an ended session
func (m *Metrics) RecordSessionEnded(cause string) {
	m.SessionsEnded.WithLabelValues(cause).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
