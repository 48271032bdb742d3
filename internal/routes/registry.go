package routes

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/leslieo2/go-spec-serve/internal/app"
)

// HandlerFunc serves one operation. a is shared by every request.
type HandlerFunc func(a *app.App, w http.ResponseWriter, r *http.Request)

// Registry maps operationId to the handler serving it.
type Registry map[string]HandlerFunc

// Merge returns a new registry holding r and other. Entries of other win.
func (r Registry) Merge(other Registry) Registry {
	out := make(Registry, len(r)+len(other))
	for id, h := range r {
		out[id] = h
	}
	for id, h := range other {
		out[id] = h
	}
	return out
}

// Unresolved lists the routes without a handler, formatted as
// "METHOD path (operationId)".
func (r Registry) Unresolved(routes []Route) []string {
	var missing []string
	for _, route := range routes {
		if _, ok := r[route.OperationID]; ok && route.OperationID != "" {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s %s (%s)", route.Method, route.Path, route.OperationID))
	}
	sort.Strings(missing)
	return missing
}
