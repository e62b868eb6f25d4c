package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the booking
// engine and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	bookingsTotal      prometheus.Counter
	approvalsTotal     prometheus.Counter
	rejectionsTotal    prometheus.Counter
	conflictsTotal     prometheus.Counter
	recurrenceBatches  *prometheus.CounterVec
	changeRequests     *prometheus.CounterVec
	changeResolutions  *prometheus.CounterVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheLatency       prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_requests_total",
		Help: "Total slot booking requests accepted",
	})
	approvalsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_approvals_total",
		Help: "Total pending bookings approved into sessions",
	})
	rejectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_rejections_total",
		Help: "Total pending bookings rejected",
	})
	conflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Total operations rejected because of interval conflicts",
	})
	recurrenceBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recurrence_batches_total",
		Help: "Recurring slot batches by outcome",
	}, []string{"result"})
	changeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_change_requests_total",
		Help: "Session change requests by type",
	}, []string{"type"})
	changeResolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_change_resolutions_total",
		Help: "Session change resolutions by outcome",
	}, []string{"outcome"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})
	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(requestDuration, requestTotal,
		bookingsTotal, approvalsTotal, rejectionsTotal, conflictsTotal,
		recurrenceBatches, changeRequests, changeResolutions,
		cacheHits, cacheMisses, cacheLatency)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		bookingsTotal:     bookingsTotal,
		approvalsTotal:    approvalsTotal,
		rejectionsTotal:   rejectionsTotal,
		conflictsTotal:    conflictsTotal,
		recurrenceBatches: recurrenceBatches,
		changeRequests:    changeRequests,
		changeResolutions: changeResolutions,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		cacheLatency:      cacheLatency,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordBooking counts an accepted booking request.
func (s *MetricsService) RecordBooking() {
	if s != nil {
		s.bookingsTotal.Inc()
	}
}

// RecordApproval counts a booking approved into a session.
func (s *MetricsService) RecordApproval() {
	if s != nil {
		s.approvalsTotal.Inc()
	}
}

// RecordRejection counts a rejected booking.
func (s *MetricsService) RecordRejection() {
	if s != nil {
		s.rejectionsTotal.Inc()
	}
}

// RecordConflict counts an operation blocked by an interval conflict.
func (s *MetricsService) RecordConflict() {
	if s != nil {
		s.conflictsTotal.Inc()
	}
}

// RecordRecurrenceBatch counts a recurring batch by outcome.
func (s *MetricsService) RecordRecurrenceBatch(result string) {
	if s != nil {
		s.recurrenceBatches.WithLabelValues(result).Inc()
	}
}

// RecordChangeRequest counts an opened change request.
func (s *MetricsService) RecordChangeRequest(changeType string) {
	if s != nil {
		s.changeRequests.WithLabelValues(changeType).Inc()
	}
}

// RecordChangeResolution counts a resolved change request.
func (s *MetricsService) RecordChangeResolution(outcome string) {
	if s != nil {
		s.changeResolutions.WithLabelValues(outcome).Inc()
	}
}

// RecordCacheOperation counts a hit or miss and its latency.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if s == nil {
		return
	}
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
	s.cacheLatency.Observe(duration.Seconds())
}
