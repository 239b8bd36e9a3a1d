package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatsend/internal/metrics"
	"chatsend/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func TestObservabilityMiddleware(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logBuffer)
	logger.SetFormatter(&logrus.JSONFormatter{})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tracing.GetRequestID(r.Context()) == "" {
			t.Error("Expected request ID to be set in context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	})

	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(logger))
	router.Handle("/api/messages/{id}", testHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/messages/abc", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected request ID response header")
	}

	logOutput := logBuffer.String()
	if !strings.Contains(logOutput, "HTTP request completed") {
		t.Error("Expected request completion log")
	}
	if !strings.Contains(logOutput, `"route":"/api/messages/{id}"`) {
		t.Errorf("Expected templated route in logs, got %s", logOutput)
	}

	snapshot := metrics.GetSnapshot()
	found := false
	for key := range snapshot.Counters {
		if strings.HasPrefix(key, metrics.HTTPRequests) && strings.Contains(key, "/api/messages/{id}") {
			found = true
		}
	}
	if !found {
		t.Error("Expected HTTP request counter labelled with the route template")
	}
}

func TestObservabilityMiddleware_KeepsIncomingRequestID(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	var seen string
	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "req_fixed")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "req_fixed" {
		t.Errorf("Expected incoming request id to be kept, got %q", seen)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestResponseWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapper := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	wrapper.WriteHeader(http.StatusCreated)
	n, err := wrapper.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("unexpected write result %d, %v", n, err)
	}
	if wrapper.statusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", wrapper.statusCode)
	}
	if wrapper.responseSize != 5 {
		t.Errorf("Expected size 5, got %d", wrapper.responseSize)
	}
	if wrapper.Unwrap() != rec {
		t.Error("Expected Unwrap to return the underlying writer")
	}
}
