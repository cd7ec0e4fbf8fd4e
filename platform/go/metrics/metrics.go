package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seletor_hub"

// Outcome labels shared by the provisioning and aggregation collectors.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics groups the hub collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	provisions         *prometheus.CounterVec
	provisionDuration  prometheus.Histogram
	templateStatements *prometheus.CounterVec
	teardowns          *prometheus.CounterVec

	aggregations        prometheus.Histogram
	tenantFetches       *prometheus.CounterVec
	tenantFetchDuration prometheus.Histogram

	logins *prometheus.CounterVec
}

// New registers every collector on a fresh registry along with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		provisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_provisions_total",
			Help:      "Tenant provisioning attempts by outcome.",
		}, []string{"outcome"}),
		provisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tenant_provision_duration_seconds",
			Help:      "Time spent creating a tenant database and applying its template.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		templateStatements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_statements_total",
			Help:      "Template statements executed by phase and outcome.",
		}, []string{"phase", "outcome"}),
		teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_teardowns_total",
			Help:      "Tenant database teardowns by outcome.",
		}, []string{"outcome"}),
		aggregations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "user_aggregation_duration_seconds",
			Help:      "Time spent fanning out across tenant databases for the aggregated user listing.",
			Buckets:   prometheus.DefBuckets,
		}),
		tenantFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_user_fetches_total",
			Help:      "Per-tenant user reads by outcome.",
		}, []string{"outcome"}),
		tenantFetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tenant_user_fetch_duration_seconds",
			Help:      "Latency of reading one tenant's users table.",
			Buckets:   prometheus.DefBuckets,
		}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveProvision(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(outcome).Inc()
	m.provisionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTemplateStatement(phase, outcome string) {
	if m == nil {
		return
	}
	m.templateStatements.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) ObserveTeardown(outcome string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAggregation(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.aggregations.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTenantFetch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tenantFetches.WithLabelValues(outcome).Inc()
	m.tenantFetchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}
