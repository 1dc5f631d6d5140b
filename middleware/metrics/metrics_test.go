package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator-gateway/middleware/pipeline"
)

var routes = []string{"/api/v1/auth", "/api/v1/agents", "/api/v1/workflows", "/api/v1/services", "/health", "/health/ready", "/metrics"}

func TestRecorder_RouteLabel(t *testing.T) {
	m := NewRecorder(prometheus.NewRegistry(), routes...)

	cases := map[string]string{
		"/api/v1/agents":          "/api/v1/agents",
		"/api/v1/agents/42/runs":  "/api/v1/agents",
		"/api/v1/agentsXYZ":       OtherRoute,
		"/health":                 "/health",
		"/health/ready":           "/health/ready",
		"/":                       OtherRoute,
		"/random/path/12345":      OtherRoute,
		"/api/v1/workflows/a/b/c": "/api/v1/workflows",
	}
	for path, want := range cases {
		assert.Equal(t, want, m.RouteLabel(path), path)
	}
}

func TestStage_CountsRequestsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRecorder(reg, routes...)

	h := pipeline.New(pipeline.Options{}, NewStage(m)).Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/slow") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, p := range []string{"/api/v1/agents/1", "/api/v1/agents/2", "/api/v1/agents/slow", "/unknown"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/agents", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/agents", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", OtherRoute, "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))

	count, err := testutil.GatherAndCount(reg, "orchestrator_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecorder_RateLimitAndResources(t *testing.T) {
	m := NewRecorder(prometheus.NewRegistry())

	m.ObserveRateLimit(true, nil)
	m.ObserveRateLimit(false, nil)
	m.ObserveRateLimit(false, nil)
	m.ObserveRateLimit(true, errors.New("redis down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimit.WithLabelValues("allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rateLimit.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimit.WithLabelValues("error")))

	m.SetResourceUp("store", true)
	m.SetResourceUp("cache", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourceUp.WithLabelValues("store")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.resourceUp.WithLabelValues("cache")))

	m.ObserveJob("succeeded", 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("succeeded")))

	var nilRec *Recorder
	nilRec.ObserveRateLimit(true, nil)
	nilRec.SetResourceUp("x", true)
	nilRec.ObserveJob("failed", 0)
}

func TestNewRegistry_IncludesRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			found = true
		}
	}
	assert.True(t, found)
}
