package server

import (
	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/observability"
	"github.com/leslieo2/go-spec-serve/internal/routes"
)

type options struct {
	logFn    observability.LogFn
	logger   *zap.Logger
	registry routes.Registry
}

// Option customizes a Server built by New, Init or Bootstrap.
type Option func(*options)

// WithLogFn sets the function receiving the per-request diagnostics. The
// default discards them.
func WithLogFn(fn observability.LogFn) Option {
	return func(o *options) {
		if fn != nil {
			o.logFn = fn
		}
	}
}

// WithLogger injects the zap logger. Without it one is built from the
// logging configuration and owned by the server.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry sets the operation handlers.
func WithRegistry(reg routes.Registry) Option {
	return func(o *options) { o.registry = reg }
}
