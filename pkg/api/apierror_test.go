package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mindburn-Labs/helm-bridge/pkg/api"
	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
)

func TestWriteErrorR_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteErrorR(w, httptest.NewRequest("POST", "/v1/governance/upgrade", nil), http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", problem.Title)
	}
	if problem.Detail != "field is missing" {
		t.Errorf("expected detail 'field is missing', got %q", problem.Detail)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/receipts", nil)
	api.WriteInternal(w, req, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Must NOT contain internal error details
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/governance/upgrade", nil)
	api.WriteTooManyRequests(w, req, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteErrorR_EnrichesWithRequestContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/receipts/abc", nil)
	req = req.WithContext(auth.WithRequestID(req.Context(), "req-123"))
	w := httptest.NewRecorder()
	w.Header().Set(auth.RequestIDHeader, "stale")

	api.WriteErrorR(w, req, http.StatusBadRequest, "Bad Request", "bad input")

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Instance != "/v1/receipts/abc" {
		t.Fatalf("expected instance %q, got %q", "/v1/receipts/abc", problem.Instance)
	}
	if problem.TraceID != "req-123" {
		t.Fatalf("expected trace_id %q, got %q", "req-123", problem.TraceID)
	}
}

func TestWriteProblem_CarriesKindAndReceipt(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/governance/upgrade", nil)
	w := httptest.NewRecorder()

	api.WriteProblem(w, req, http.StatusConflict, &api.ProblemDetail{
		Title:     "Already Executed",
		Kind:      "AlreadyExecuted",
		ReceiptID: "r-1",
	})

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != http.StatusConflict || problem.Type != "https://helm-bridge.schemas.local/errors/409" {
		t.Fatalf("unexpected status/type: %d %q", problem.Status, problem.Type)
	}
	if problem.Kind != "AlreadyExecuted" || problem.ReceiptID != "r-1" {
		t.Fatalf("extension members lost: %+v", problem)
	}
}

func TestWriteProblem_TraceIDFromMiddleware(t *testing.T) {
	handler := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", "receipt not found")
	}))

	req := httptest.NewRequest("GET", "/v1/receipts/missing", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.TraceID == "" || problem.TraceID != w.Header().Get(auth.RequestIDHeader) {
		t.Fatalf("trace_id %q does not match response request id %q", problem.TraceID, w.Header().Get(auth.RequestIDHeader))
	}
}
