// Package metrics exposes Prometheus collectors for the analysis pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

const namespace = "tenderwatch"

var (
	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "analysis_total", Help: "Analyses completed by recommendation."},
		[]string{"recommendation", "dry_run"},
	)
	analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "analysis_duration_seconds", Help: "Time spent analysing a claim.", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14)},
	)
	detectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "detector_errors_total", Help: "Detectors that failed or panicked."},
		[]string{"signal_type"},
	)
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Signals raised by type and severity."},
		[]string{"signal_type", "severity"},
	)
	collaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "collaborator_failures_total", Help: "Failures of optional collaborators."},
		[]string{"collaborator"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status."},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency by route.", Buckets: prometheus.DefBuckets},
		[]string{"route"},
	)
	busMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bus_messages_total", Help: "Event bus messages by topic and outcome."},
		[]string{"topic", "outcome"},
	)
)

func init() {
	_ = prometheus.Register(analysisTotal)
	_ = prometheus.Register(analysisDuration)
	_ = prometheus.Register(detectorErrors)
	_ = prometheus.Register(signalsTotal)
	_ = prometheus.Register(collaboratorFailures)
	_ = prometheus.Register(httpRequests)
	_ = prometheus.Register(httpDuration)
	_ = prometheus.Register(busMessages)
}

// Collaborator names used as label values.
const (
	CollaboratorRepository = "repository"
	CollaboratorCache      = "cache"
	CollaboratorBus        = "bus"
	CollaboratorOpinion    = "opinion"
)

// ObserveAnalysis records a completed analysis and its signals.
func ObserveAnalysis(a *domain.ClaimAnalysis, elapsed time.Duration) {
	analysisTotal.WithLabelValues(string(a.Recommendation), strconv.FormatBool(a.DryRun)).Inc()
	analysisDuration.Observe(elapsed.Seconds())
	for _, s := range a.Signals {
		if s.Failed() {
			detectorErrors.WithLabelValues(string(s.Type)).Inc()
			continue
		}
		signalsTotal.WithLabelValues(string(s.Type), string(s.Severity)).Inc()
	}
}

// CollaboratorFailed counts a failure of an optional collaborator.
func CollaboratorFailed(name string) {
	collaboratorFailures.WithLabelValues(name).Inc()
}

// Bus message outcomes used as label values.
const (
	BusPublished    = "published"
	BusDropped      = "dropped"
	BusDelivered    = "delivered"
	BusHandlerError = "handler_error"
	BusDecodeError  = "decode_error"
)

// BusMessage counts one event bus message outcome.
func BusMessage(topic, outcome string) {
	busMessages.WithLabelValues(topic, outcome).Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
