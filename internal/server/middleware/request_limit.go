package middleware

import (
	"fmt"
	"net/http"
)

// RequestSizeLimitMiddleware rejects requests whose declared length exceeds
// maxRequestSize and caps the body reader for the rest.
func RequestSizeLimitMiddleware(maxRequestSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxRequestSize <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxRequestSize {
				WriteError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body too large, max size: %d bytes", maxRequestSize))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}
