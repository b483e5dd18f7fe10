package httpadapter

import (
	"net/http"
	"time"

	"datanav/internal/core/ports"
	"datanav/internal/observability/metrics"
)

// Options tunes the traffic control and validation layers in front of the
// handlers. Zero values disable the corresponding layer.
type Options struct {
	ServiceName      string
	RateLimitRPS     int
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	ValidateRequests bool
}

type Router struct {
	answers     ports.AnswerService
	simulations ports.SimulationService
	stats       ports.StatsService
	feedback    ports.FeedbackService
	metrics     *metrics.HTTPServerMetrics
	opts        Options
	validator   func(http.Handler) http.Handler
}

func NewRouter(
	answers ports.AnswerService,
	simulations ports.SimulationService,
	stats ports.StatsService,
	feedback ports.FeedbackService,
	m *metrics.HTTPServerMetrics,
	opts Options,
) (*Router, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "api"
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 50 * time.Millisecond
	}

	rt := &Router{
		answers:     answers,
		simulations: simulations,
		stats:       stats,
		feedback:    feedback,
		metrics:     m,
		opts:        opts,
	}
	if opts.ValidateRequests {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answer", rt.answer)
	mux.HandleFunc("/v1/simulate", rt.simulate)
	mux.HandleFunc("/v1/suggestions", rt.suggestions)
	mux.HandleFunc("/v1/feedback", rt.saveFeedback)
	mux.HandleFunc("/v1/stats", rt.storeStats)
	mux.HandleFunc("/openapi.json", rt.openapiContract)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.validator != nil {
		handler = rt.validator(handler)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
