// Package models - API response types and error handling.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Optional fields use omitempty to reduce response size
package models

import "time"

// AdmitResponse is returned for every admission check. RetryAfterMS is only
// meaningful when Allowed is false: it is how long the dispatcher should wait
// before reconsidering events from this actor.
type AdmitResponse struct {
	Allowed      bool   `json:"allowed"`
	Verdict      string `json:"verdict"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// ArtifactResponse carries a cached delivery handle.
type ArtifactResponse struct {
	SubjectID int64     `json:"subject_id"`
	VariantID int64     `json:"variant_id"`
	Format    string    `json:"format"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// BatchesResponse carries the ordered handle groups cached for one
// subject/variant. Only batch indices actually present are included; callers
// decide whether a partial result is acceptable.
type BatchesResponse struct {
	SubjectID int64      `json:"subject_id"`
	VariantID int64      `json:"variant_id"`
	Batches   [][]string `json:"batches"`
}

// InvalidateResponse reports how many cache rows an invalidation removed.
type InvalidateResponse struct {
	Removed int64 `json:"removed"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status constants
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Standard error codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:  status,
		Message: message,
	}
}
