package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/database/mock"
	"go.uber.org/zap"
)

var (
	aliceFace = []float32{1, 0, 0, 0}
	bobFace   = []float32{0, 1, 0, 0}
)

// fixedNow is a Monday morning used as the request time in handler tests
var fixedNow = time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	policy := config.DefaultPolicy()
	policy.Attendance.Timezone = "UTC"
	return &config.Config{
		Web:       config.WebConfig{Host: "127.0.0.1", Port: 8080},
		Embedding: config.EmbeddingConfig{Dim: 4},
		Policy:    *policy,
	}
}

// newTestPipeline creates a pipeline over mocks with alice and bob registered
func newTestPipeline(t *testing.T) (*attendance.Pipeline, *mock.Backend) {
	t.Helper()

	cfg := testConfig()
	backend := mock.NewBackend()
	p, err := attendance.New(attendance.Config{Policy: &cfg.Policy, Dim: cfg.Embedding.Dim}, attendance.Stores{
		Templates: backend.Templates,
		Employees: backend.Employees,
		Punches:   backend.Punches,
		Records:   backend.Records,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	ctx := context.Background()
	for _, e := range []struct {
		id, name string
		face     []float32
	}{{"alice", "Alice Nováková", aliceFace}, {"bob", "Bob", bobFace}} {
		if err := p.RegisterEmployee(ctx, database.Employee{ID: e.id, Name: e.name}, e.face); err != nil {
			t.Fatalf("failed to register %s: %v", e.id, err)
		}
	}
	return p, backend
}

// jsonRequest creates a request with a JSON-encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
