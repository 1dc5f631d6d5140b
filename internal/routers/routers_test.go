package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator-gateway/middleware/pipeline"
)

func decodeDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["detail"]
}

func TestMount_NotConfigured(t *testing.T) {
	r := chi.NewRouter()
	require.NoError(t, Mount(r, map[string]string{}, nil))

	for _, group := range Groups {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, Prefix(group)+"/x", nil))

		assert.Equal(t, http.StatusNotImplemented, rr.Code, group)
		assert.Equal(t, group+" service not configured", decodeDetail(t, rr))
	}
}

func TestMount_ProxiesToUpstream(t *testing.T) {
	var gotPath, gotRequestID, gotForwardedHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get(pipeline.RequestIDHeader)
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("agent created"))
	}))
	defer upstream.Close()

	r := chi.NewRouter()
	require.NoError(t, Mount(r, map[string]string{"agents": upstream.URL}, nil))
	h := pipeline.New(pipeline.Options{}).Then(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/run", nil)
	req.Host = "orchestrator.local"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "agent created", rr.Body.String())
	assert.Equal(t, "/api/v1/agents/run", gotPath)
	assert.Equal(t, rr.Header().Get(pipeline.RequestIDHeader), gotRequestID)
	assert.Equal(t, "orchestrator.local", gotForwardedHost)

	// os demais grupos continuam sem upstream
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestProxy_UnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	h, err := NewProxy("workflows", addr, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Bad gateway", decodeDetail(t, rr))
}

func TestProxy_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	h, err := NewProxy("services", upstream.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil).WithContext(ctx))

	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestNewProxy_InvalidURL(t *testing.T) {
	_, err := NewProxy("auth", "not a url", nil)
	assert.Error(t, err)

	r := chi.NewRouter()
	assert.Error(t, Mount(r, map[string]string{"auth": "::"}, nil))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, []string{
		"/api/v1/auth",
		"/api/v1/agents",
		"/api/v1/workflows",
		"/api/v1/services",
	}, Prefixes())
}
