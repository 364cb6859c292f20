// Package httputil provides the small HTTP plumbing shared by the REST
// layer: typed context keys, response helpers and the middleware type.
package httputil

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/auth"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
	PrincipalCtxKey ContextKey = "Principal"
)

// Principal extracts the request principal from the context. Requests that
// passed the principal middleware always carry one.
func Principal(r *http.Request) (*auth.Principal, bool) {
	p, ok := r.Context().Value(PrincipalCtxKey).(*auth.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// RequestID returns the request id assigned by the middleware, or "".
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDCtxKey).(string)
	return id
}

// Logger returns the request-scoped logger, falling back to a no-op logger.
func Logger(r *http.Request) *zap.Logger {
	if log, ok := r.Context().Value(LogEntryCtxKey).(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Error sends a JSON response with an error code and message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := ErrorResponse{
		Code:    statusCode,
		Message: message,
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		// Fallback if JSON encoding fails
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
