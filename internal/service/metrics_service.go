package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	deniedTotal     *prometheus.CounterVec
	submissionTotal *prometheus.CounterVec
	gradeTotal      prometheus.Counter
	attendanceBatch prometheus.Histogram
	reportDuration  *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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

	deniedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_denied_total",
		Help: "Operations refused by the access gate",
	}, []string{"role", "resource"})

	submissionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Submissions accepted, by outcome",
	}, []string{"outcome"})

	gradeTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grades_recorded_total",
		Help: "Grades written to the store",
	})

	attendanceBatch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_batch_size",
		Help:    "Number of rows per attendance batch",
		Buckets: []float64{1, 5, 10, 20, 30, 40, 50},
	})

	reportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_render_duration_seconds",
		Help:    "Duration of report-card renders",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, deniedTotal, submissionTotal,
		gradeTotal, attendanceBatch, reportDuration, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		deniedTotal:     deniedTotal,
		submissionTotal: submissionTotal,
		gradeTotal:      gradeTotal,
		attendanceBatch: attendanceBatch,
		reportDuration:  reportDuration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDenied counts a refused operation.
func (m *MetricsService) RecordDenied(role, resource string) {
	if m == nil {
		return
	}
	m.deniedTotal.WithLabelValues(role, resource).Inc()
}

// RecordSubmission counts a submission attempt by outcome.
func (m *MetricsService) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionTotal.WithLabelValues(outcome).Inc()
}

// RecordGrade counts a written grade.
func (m *MetricsService) RecordGrade() {
	if m == nil {
		return
	}
	m.gradeTotal.Inc()
}

// ObserveAttendanceBatch records the size of an accepted batch.
func (m *MetricsService) ObserveAttendanceBatch(size int) {
	if m == nil {
		return
	}
	m.attendanceBatch.Observe(float64(size))
}

// ObserveReportRender records a report render duration by format.
func (m *MetricsService) ObserveReportRender(format string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordCacheOperation counts cache hits and misses.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
