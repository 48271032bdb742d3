package middleware

import (
	"net/http"
	"strings"

	"github.com/leslieo2/go-spec-serve/internal/observability"
)

// RequestHook logs every inbound request through log before handing it on.
// The body is logged as nil: it has not been read at this point and reading
// it here would consume it.
func RequestHook(log observability.LogFn) func(http.Handler) http.Handler {
	if log == nil {
		log = observability.NopLogFn
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			log("NEW REQUEST")
			log(strings.ToUpper(r.Method), path)
			log("request path", path)
			log("request method", strings.ToLower(r.Method))
			log("request body", nil)
			log("request headers", r.Header)

			next.ServeHTTP(w, r)
		})
	}
}
