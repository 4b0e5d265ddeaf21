// Package metrics provides Prometheus metrics for Tick.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nugget/tick/internal/buildinfo"
)

// Outcome labels.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDegraded = "degraded"
)

// Metrics holds all Prometheus metrics for Tick. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Chat metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatRequestDuration prometheus.Histogram

	// Model exchange metrics
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// ModelUp is 1 while the model endpoint answers health probes.
	ModelUp prometheus.Gauge
}

// New creates all metrics on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.ChatRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_chat_requests_total",
			Help: "Total number of chat requests by outcome",
		},
		[]string{"status"},
	)

	m.ChatRequestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tick_chat_request_duration_seconds",
			Help:    "End-to-end duration of chat requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	m.ExchangesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_model_exchanges_total",
			Help: "Total number of model exchanges",
		},
		[]string{"phase", "status"},
	)

	m.ExchangeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tick_model_exchange_duration_seconds",
			Help:    "Duration of model exchanges in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	m.TokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_model_tokens_total",
			Help: "Tokens reported by the model provider",
		},
		[]string{"direction"},
	)

	m.ToolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_tool_calls_total",
			Help: "Total number of tool calls by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	m.ToolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tick_tool_call_duration_seconds",
			Help:    "Duration of tool calls in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"tool"},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tick_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.ModelUp = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "tick_model_up",
			Help: "Whether the model endpoint answered the last health probe",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tick_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return buildinfo.Uptime().Seconds() },
	)

	factory.NewGauge(
		prometheus.GaugeOpts{
			Name:        "tick_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"version": buildinfo.Version, "commit": buildinfo.Commit()},
		},
	).Set(1)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordChat records one completed chat request.
func (m *Metrics) RecordChat(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(status).Inc()
	m.ChatRequestDuration.Observe(duration.Seconds())
}

// RecordExchange records one model exchange. phase is "first" or "second".
func (m *Metrics) RecordExchange(phase, status string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.ExchangesTotal.WithLabelValues(phase, status).Inc()
	m.ExchangeDuration.WithLabelValues(phase).Observe(duration.Seconds())
	m.TokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served HTTP request. route is the mux
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetModelUp records the outcome of a model health probe.
func (m *Metrics) SetModelUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ModelUp.Set(1)
	} else {
		m.ModelUp.Set(0)
	}
}
