package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/constants"
	"github.com/leslieo2/go-spec-serve/internal/routes"
	"github.com/leslieo2/go-spec-serve/internal/server/middleware"
)

// loadRoutes loads the API document and swaps in a router for it. On error
// the routes being served are left alone.
func (s *Server) loadRoutes() error {
	table, err := routes.Load(s.cfg.API.SpecFile)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	if missing := s.registry.Unresolved(table.Routes()); len(missing) > 0 {
		if s.cfg.API.StrictHandlers {
			return fmt.Errorf("no handler registered for: %s", strings.Join(missing, ", "))
		}
		s.logger.Warn("Operations without a handler answer 501", zap.Strings("operations", missing))
	}

	mux, err := s.buildRouter(table)
	if err != nil {
		return err
	}

	s.table.Store(table)
	s.router.Store(mux)
	return nil
}

// Name identifies the server to the hot reload coordinator.
func (s *Server) Name() string {
	return "routes"
}

// Reload re-reads the API document. A failed reload keeps serving the
// previous routes.
func (s *Server) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.loadRoutes(); err != nil {
		s.logger.Error("Failed to reload routes", zap.Error(err))
		return err
	}
	s.monitor.Log([]string{"info", "reload"}, "Routes reloaded from "+s.cfg.API.SpecFile)
	return nil
}

func (s *Server) buildRouter(table *routes.Table) (mux *http.ServeMux, err error) {
	mux = http.NewServeMux()

	// ServeMux panics on conflicting patterns
	pattern := ""
	defer func() {
		if rec := recover(); rec != nil {
			mux = nil
			err = fmt.Errorf("failed to register %q: %v", pattern, rec)
		}
	}()

	pattern = "GET /{$}"
	mux.HandleFunc(pattern, s.handleHealth)

	pattern = docsPattern(s.cfg.API.DocsPath)
	mux.HandleFunc(pattern, s.handleDocs)

	for _, route := range table.Routes() {
		if route.Method == http.MethodGet && route.Path == constants.PathHealth {
			s.logger.Warn("Skipping operation shadowed by the health route",
				zap.String("operation_id", route.OperationID))
			continue
		}

		pattern = route.Pattern()
		mux.Handle(pattern, s.routeHandler(table, route))
		s.logger.Debug("Registered route",
			zap.String("pattern", pattern),
			zap.String("operation_id", route.OperationID),
		)
	}

	return mux, nil
}

func (s *Server) routeHandler(table *routes.Table, route routes.Route) http.HandlerFunc {
	handler := s.registry[route.OperationID]
	if route.OperationID == "" {
		handler = nil
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.StartSpan(r.Context(), "handle_request",
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route.Path),
			attribute.String("operation_id", route.OperationID),
		)
		defer span.End()
		r = r.WithContext(ctx)

		if s.cfg.API.ValidateRequests {
			if err := table.ValidateRequest(ctx, route, r); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		if handler == nil {
			middleware.WriteError(w, http.StatusNotImplemented,
				fmt.Sprintf("No handler registered for %s %s", route.Method, route.Path))
			return
		}

		handler(s.app, w, r)
	}
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "documentation")
	defer span.End()

	body, err := s.table.Load().DocumentJSON(s.URL())
	if err != nil {
		s.logger.Error("Failed to render API document", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render API document")
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	_, _ = w.Write(body)
}
