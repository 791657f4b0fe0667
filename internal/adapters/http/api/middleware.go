package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pointercrate/demonlist/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
// Failed requests are counted under the error envelope's code, so an
// invalid_position rejection and a duplicate submission land in separate
// series.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			errorType := wrapped.errorCode
			if errorType == "" {
				errorType = fallbackErrorType(wrapped.statusCode)
			}
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, errorSeverity(wrapped.statusCode))
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// fallbackErrorType labels errors written without the envelope, such as
// the mux's own 404 and 405 responses.
func fallbackErrorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "client_error"
	}
}

// errorSeverity ranks a failed request. Expected rejections (422, 409, 404)
// are low and server faults other than 503 are high.
func errorSeverity(statusCode int) string {
	switch {
	case statusCode == http.StatusUnprocessableEntity,
		statusCode == http.StatusConflict,
		statusCode == http.StatusNotFound:
		return "low"
	case statusCode >= http.StatusInternalServerError && statusCode != http.StatusServiceUnavailable:
		return "high"
	default:
		return "medium"
	}
}

// responseWriter captures the status code and the error envelope code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	errorCode  string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// noteErrorCode tags w with the envelope code when w is instrumented.
func noteErrorCode(w http.ResponseWriter, code string) {
	if rw, ok := w.(*responseWriter); ok {
		rw.errorCode = code
	}
}
