package faults

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/pipeline"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBoundary_ProductionHidesDetails(t *testing.T) {
	var buf bytes.Buffer
	b := New(logger.NewWithWriter(&buf, "INFO", "json"), true)

	h := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database password is hunter2")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agents", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"detail": "Internal server error"}, decode(t, rec))
	assert.NotContains(t, rec.Body.String(), "hunter2")

	logged := buf.String()
	assert.Contains(t, logged, `"level":"ERROR"`)
	assert.Contains(t, logged, "unhandled exception")
	assert.Contains(t, logged, `"method":"POST"`)
	assert.Contains(t, logged, `"path":"/api/v1/agents"`)
	assert.Contains(t, logged, `"stack":`)
}

func TestBoundary_DevelopmentExposesMessageAndType(t *testing.T) {
	b := New(nil, false)

	h := b.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		return &fs.PathError{Op: "open", Path: "/etc/agents.yaml", Err: fs.ErrNotExist}
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "open /etc/agents.yaml: file does not exist", body["detail"])
	assert.Equal(t, "PathError", body["type"])
}

func TestBoundary_PanicWithError(t *testing.T) {
	b := New(nil, false)
	h := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("nil agent"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := decode(t, rec)
	assert.Equal(t, "panic: nil agent", body["detail"])
	assert.Equal(t, "errorString", body["type"])
}

func TestBoundary_PanicWithNonError(t *testing.T) {
	b := New(nil, false)
	h := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(42)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := decode(t, rec)
	assert.Equal(t, "panic: 42", body["detail"])
	assert.Equal(t, "panic", body["type"])
}

func TestBoundary_ErrAbortHandlerIsRepanicked(t *testing.T) {
	b := New(nil, true)
	h := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestBoundary_StartedResponseOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	b := New(logger.NewWithWriter(&buf, "INFO", "json"), true)

	inner := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late failure")
	}))
	h := pipeline.New(pipeline.Options{}).Then(inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Contains(t, buf.String(), "late failure")
}

func TestBoundary_LogsRequestIDInsidePipeline(t *testing.T) {
	var buf bytes.Buffer
	b := New(logger.NewWithWriter(&buf, "INFO", "json"), true)

	h := pipeline.New(pipeline.Options{}, b).Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"request_id":"`+rec.Header().Get(pipeline.RequestIDHeader)+`"`)
	assert.Equal(t, "faults", b.Name())
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "errorString", TypeName(errors.New("x")))
	assert.Equal(t, "PathError", TypeName(&UnhandledError{Err: &fs.PathError{}}))
	assert.Equal(t, "panic", TypeName(&PanicError{Value: "s"}))
}

type explodingError struct{}

func (explodingError) Error() string { panic("message unavailable") }

// headerOnceWriter entra em panic na primeira chamada a Header().
type headerOnceWriter struct {
	*httptest.ResponseRecorder
	calls int
}

func (w *headerOnceWriter) Header() http.Header {
	w.calls++
	if w.calls == 1 {
		panic("header map unavailable")
	}
	return w.ResponseRecorder.Header()
}

func TestBoundary_TypedNilError(t *testing.T) {
	b := New(nil, true)

	h := b.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		var pe *fs.PathError
		return pe
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"detail": "Internal server error"}, decode(t, rec))
}

func TestBoundary_ErrorMethodPanics(t *testing.T) {
	var buf bytes.Buffer
	b := New(logger.NewWithWriter(&buf, "INFO", "json"), false)

	h := b.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		return explodingError{}
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "explodingError", body["type"])
	assert.Contains(t, body["detail"], "message unavailable")
	assert.Contains(t, buf.String(), "unhandled exception")
}

func TestBoundary_RenderFailureFallsBackToGenericBody(t *testing.T) {
	var buf bytes.Buffer
	b := New(logger.NewWithWriter(&buf, "INFO", "json"), false)

	w := &headerOnceWriter{ResponseRecorder: httptest.NewRecorder()}
	b.Handle(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("db down"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.ResponseRecorder.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"detail": "Internal server error"}, decode(t, w.ResponseRecorder))
	assert.Contains(t, buf.String(), "fault boundary failed to render response")
}
