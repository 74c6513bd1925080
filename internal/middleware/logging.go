package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/conneroisu/ssrgate/internal/logging"
)

// statusRecorder captures the status code and size written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the live reload socket upgrade through the access log.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// Flush implements http.Flusher.
func (r *statusRecorder) Flush() {
	_ = http.NewResponseController(r.ResponseWriter).Flush()
}

// AccessLog logs one line per request with method, path, status, size,
// duration and request ID. Server errors are logged at error level.
func AccessLog(logger logging.Logger) Middleware {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.RequestURI(),
				"status", status,
				"bytes", rec.bytes,
				"duration", time.Since(start),
			}
			if id, ok := GetRequestID(r.Context()); ok {
				fields = append(fields, "request_id", id)
			}

			if status >= http.StatusInternalServerError {
				logger.Error(r.Context(), nil, "Request completed", fields...)
				return
			}
			logger.Info(r.Context(), "Request completed", fields...)
		})
	}
}
