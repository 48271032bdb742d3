package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leslieo2/go-spec-serve/internal/observability"
)

// ResponseSink receives one event per completed request.
type ResponseSink interface {
	Response(observability.ResponseEvent)
}

// InFlight counts requests currently being served.
type InFlight struct {
	n     atomic.Int64
	gauge prometheus.Gauge
}

// NewInFlight mirrors the count into gauge when it is not nil.
func NewInFlight(gauge prometheus.Gauge) *InFlight {
	return &InFlight{gauge: gauge}
}

func (f *InFlight) Load() int64 {
	return f.n.Load()
}

func (f *InFlight) inc() {
	f.n.Add(1)
	if f.gauge != nil {
		f.gauge.Inc()
	}
}

func (f *InFlight) dec() {
	f.n.Add(-1)
	if f.gauge != nil {
		f.gauge.Dec()
	}
}

// ResponseWriter wraps http.ResponseWriter to capture status code and size
type ResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// StatusCode returns the status written so far, 200 if none was.
func (rw *ResponseWriter) StatusCode() int {
	return rw.statusCode
}

// ResponseLogging reports every completed request to sink. The route is the
// ServeMux pattern that matched, empty when none did.
func ResponseLogging(sink ResponseSink, inFlight *InFlight) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if inFlight != nil {
				inFlight.inc()
				defer inFlight.dec()
			}

			wrapped := &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				requestSize := r.ContentLength
				if requestSize < 0 {
					requestSize = 0
				}
				sink.Response(observability.ResponseEvent{
					RequestID:    RequestIDFrom(r.Context()),
					Method:       r.Method,
					Path:         r.URL.Path,
					Route:        r.Pattern,
					StatusCode:   wrapped.statusCode,
					Duration:     time.Since(start),
					RequestSize:  requestSize,
					ResponseSize: wrapped.size,
					RemoteAddr:   r.RemoteAddr,
					UserAgent:    r.UserAgent(),
				})
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
