// Package api serves the bridge over HTTP with RFC 7807 problem responses.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// TraceID links to the distributed trace for this request.
	TraceID string `json:"trace_id,omitempty"`

	// Kind is the processing error kind, when the problem came from one.
	Kind string `json:"kind,omitempty"`
	// ReceiptID names the receipt issued for a failed upgrade.
	ReceiptID string `json:"receipt_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("https://helm-bridge.schemas.local/errors/%d", status)
}

// WriteProblem writes p as an RFC 7807 response, filling Type and Status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, p *ProblemDetail) {
	p.Type = problemType(status)
	p.Status = status
	if r != nil {
		p.Instance = r.URL.Path
		if p.TraceID == "" {
			p.TraceID = auth.GetRequestID(r.Context())
		}
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteErrorR writes an RFC 7807 response enriched with request context
// (trace_id from the request id, instance from the request path).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	WriteProblem(w, r, status, &ProblemDetail{Title: title, Detail: detail})
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteErrorR(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error", "request_id", auth.GetRequestID(r.Context()), "error", err)
	WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
