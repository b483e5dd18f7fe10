package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answerRequestsTotal    *prometheus.CounterVec
	answerCacheHitsTotal   *prometheus.CounterVec
	answerNoDataTotal      *prometheus.CounterVec
	answerPartialTotal     *prometheus.CounterVec
	answerCitations        *prometheus.HistogramVec
	answerUnsupportedTotal *prometheus.CounterVec
	answerDuration         *prometheus.HistogramVec
	llmAnswersTotal        *prometheus.CounterVec
	simulateRequestsTotal  *prometheus.CounterVec
	simulateHorizonMonths  *prometheus.HistogramVec
	feedbackTotal          *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datanav",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "datanav",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answerRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total served answers by effective mode.",
		},
		[]string{"service", "mode"},
	)
	answerCacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "cache_hits_total",
			Help:      "Total answers served from the answer cache.",
		},
		[]string{"service"},
	)
	answerNoDataTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "no_data_total",
			Help:      "Total answers that found no grounding data.",
		},
		[]string{"service"},
	)
	answerPartialTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "partial_retrieval_total",
			Help:      "Total answers produced with one or more stores excluded.",
		},
		[]string{"service"},
	)
	answerCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "citations",
			Help:      "Distribution of bound citations per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	answerUnsupportedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "unsupported_spans_total",
			Help:      "Total answer spans left without a supporting source.",
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datanav",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "End-to-end answer latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	llmAnswersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "llm",
			Name:      "answers_total",
			Help:      "Total generated answers by serving provider.",
		},
		[]string{"service", "provider"},
	)
	simulateRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "simulate",
			Name:      "requests_total",
			Help:      "Total completed scenario simulations.",
		},
		[]string{"service"},
	)
	simulateHorizonMonths := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datanav",
			Subsystem: "simulate",
			Name:      "horizon_months",
			Help:      "Distribution of requested projection horizons.",
			Buckets:   []float64{1, 3, 6, 12, 24, 60, 120},
		},
		[]string{"service"},
	)
	feedbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datanav",
			Subsystem: "feedback",
			Name:      "votes_total",
			Help:      "Total recorded feedback votes by direction.",
		},
		[]string{"service", "direction"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answerRequestsTotal,
		answerCacheHitsTotal,
		answerNoDataTotal,
		answerPartialTotal,
		answerCitations,
		answerUnsupportedTotal,
		answerDuration,
		llmAnswersTotal,
		simulateRequestsTotal,
		simulateHorizonMonths,
		feedbackTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		answerRequestsTotal:    answerRequestsTotal,
		answerCacheHitsTotal:   answerCacheHitsTotal,
		answerNoDataTotal:      answerNoDataTotal,
		answerPartialTotal:     answerPartialTotal,
		answerCitations:        answerCitations,
		answerUnsupportedTotal: answerUnsupportedTotal,
		answerDuration:         answerDuration,
		llmAnswersTotal:        llmAnswersTotal,
		simulateRequestsTotal:  simulateRequestsTotal,
		simulateHorizonMonths:  simulateHorizonMonths,
		feedbackTotal:          feedbackTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds unknown paths into one label so probing traffic cannot
// inflate series cardinality.
func normalizePath(path string) string {
	switch path {
	case "/v1/answer", "/v1/simulate", "/v1/suggestions", "/v1/feedback", "/v1/stats",
		"/healthz", "/metrics", "/openapi.json":
		return path
	default:
		return "/unmatched"
	}
}

// RecordAnswerServed counts one completed answer. An empty provider means no
// generation ran, which is the no-data short circuit.
func (m *HTTPServerMetrics) RecordAnswerServed(service, mode, provider string, cacheHit bool, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.answerRequestsTotal.WithLabelValues(service, mode).Inc()
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())

	if cacheHit {
		m.answerCacheHitsTotal.WithLabelValues(service).Inc()
	}
	if provider == "" {
		m.answerNoDataTotal.WithLabelValues(service).Inc()
		return
	}
	m.llmAnswersTotal.WithLabelValues(service, provider).Inc()
}

func (m *HTTPServerMetrics) RecordAnswerQuality(service string, citations, unsupported int, partial bool) {
	m.answerCitations.WithLabelValues(service).Observe(float64(citations))
	if unsupported > 0 {
		m.answerUnsupportedTotal.WithLabelValues(service).Add(float64(unsupported))
	}
	if partial {
		m.answerPartialTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSimulation(service string, horizonMonths int, duration time.Duration) {
	m.simulateRequestsTotal.WithLabelValues(service).Inc()
	m.simulateHorizonMonths.WithLabelValues(service).Observe(float64(horizonMonths))
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordFeedback(service string, rating int) {
	direction := "up"
	if rating < 0 {
		direction = "down"
	}
	m.feedbackTotal.WithLabelValues(service, direction).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
