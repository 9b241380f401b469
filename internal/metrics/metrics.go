package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/abuse"
)

const (
	namespace      = "atlacatl"
	unmatchedRoute = "unmatched"

	// SourceManual labels cards written by users.
	SourceManual = "manual"
	// SourceAssistant labels cards carrying a generated reply.
	SourceAssistant = "assistant"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	RateLimitRejections  *prometheus.CounterVec
	LikesTotal           *prometheus.CounterVec
	CardsCreatedTotal    *prometheus.CounterVec
	CommentsCreatedTotal prometheus.Counter
	ServiceErrorsTotal   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by the abuse guard",
			},
			[]string{"class"},
		),
		LikesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "likes_total",
				Help:      "Like requests by outcome",
			},
			[]string{"status"},
		),
		CardsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cards_created_total",
				Help:      "Cards created by source",
			},
			[]string{"source"},
		),
		CommentsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comments_created_total",
				Help:      "Comments created",
			},
		),
		ServiceErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_errors_total",
				Help:      "Service errors by kind",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RateLimited implements abuse.Observer.
func (m *Metrics) RateLimited(class abuse.Class) {
	m.RateLimitRejections.WithLabelValues(string(class)).Inc()
}

// LikeRecorded counts a like outcome.
func (m *Metrics) LikeRecorded(status string) {
	m.LikesTotal.WithLabelValues(status).Inc()
}

// CardCreated counts a new card.
func (m *Metrics) CardCreated(source string) {
	m.CardsCreatedTotal.WithLabelValues(source).Inc()
}

// CommentCreated counts a new comment.
func (m *Metrics) CommentCreated() {
	m.CommentsCreatedTotal.Inc()
}

// ServiceError counts a failed service call by kind.
func (m *Metrics) ServiceError(kind string) {
	m.ServiceErrorsTotal.WithLabelValues(kind).Inc()
}

// Middleware records request counts and latencies labelled by route template, which keeps
// label cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(startTime).Seconds())
	}
}
