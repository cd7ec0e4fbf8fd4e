package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserveProvisionCountsByOutcome(t *testing.T) {
	m := New()
	m.ObserveProvision(OutcomeSuccess, time.Second)
	m.ObserveProvision(OutcomeSuccess, time.Second)
	m.ObserveProvision(OutcomeFailure, time.Millisecond)

	require.Equal(t, 2.0, counterValue(t, m, "seletor_hub_tenant_provisions_total", map[string]string{"outcome": OutcomeSuccess}))
	require.Equal(t, 1.0, counterValue(t, m, "seletor_hub_tenant_provisions_total", map[string]string{"outcome": OutcomeFailure}))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProvision(OutcomeSuccess, time.Second)
	m.ObserveTemplateStatement("create table", OutcomeSuccess)
	m.ObserveTenantFetch(OutcomeSkipped, time.Second)
	m.ObserveLogin(OutcomeFailure)
	require.Nil(t, m.Registry())

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/tenants/{tenantID}/members", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tenants/abc/members", nil))

	require.Equal(t, 1.0, counterValue(t, m, "seletor_hub_http_requests_total", map[string]string{
		"route":  "/api/tenants/{tenantID}/members",
		"method": http.MethodGet,
		"status": "418",
	}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "seletor_hub_http_requests_total"))
}
