package server

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/leslieo2/go-spec-serve/internal/server/middleware"
)

const msgDatabaseNotConnected = "Database not connected"

// handleHealth answers 200 with an empty body when the database responds and
// a 500 error body otherwise. Each call probes the database once.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.StartSpan(r.Context(), "health_check")
	defer span.End()

	connected := s.db.IsConnected(ctx)
	span.SetAttributes(attribute.Bool("db.connected", connected))
	s.metrics.SetDatabaseUp(connected)

	if !connected {
		middleware.WriteError(w, http.StatusInternalServerError, msgDatabaseNotConnected)
		return
	}
	w.WriteHeader(http.StatusOK)
}
