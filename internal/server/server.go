// Package server builds, starts and stops the HTTP server: the health route,
// the routes of the OpenAPI document, the request hook and the operational
// monitor.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leslieo2/go-spec-serve/internal/app"
	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/constants"
	"github.com/leslieo2/go-spec-serve/internal/database"
	"github.com/leslieo2/go-spec-serve/internal/observability"
	"github.com/leslieo2/go-spec-serve/internal/ratelimit"
	"github.com/leslieo2/go-spec-serve/internal/routes"
	"github.com/leslieo2/go-spec-serve/internal/server/middleware"
)

var ErrAlreadyStarted = errors.New("server already started")

// State is the lifecycle position of a Server. It only moves forward, except
// that a failed bind returns to StateUninitialized.
type State int32

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateListening
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateListening:
		return "listening"
	case StateShutDown:
		return "shut down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Server struct {
	cfg      *config.Config
	db       database.Checker
	app      *app.App
	registry routes.Registry
	logFn    observability.LogFn

	logger    *zap.Logger
	ownLogger *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	monitor   *observability.Monitor
	inFlight  *middleware.InFlight
	limiter   *ratelimit.Limiter

	table  atomic.Pointer[routes.Table]
	router atomic.Pointer[http.ServeMux]

	httpServer    *http.Server
	metricsServer *http.Server
	serving       *errgroup.Group
	addr          string
	metricsAddr   string

	state atomic.Int32
}

// New builds a server without binding it. The API document is loaded and
// every component is created, so configuration problems surface here.
func New(cfg *config.Config, db database.Checker, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{logFn: observability.NopLogFn}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		registry: o.registry,
		logFn:    o.logFn,
		logger:   o.logger,
	}

	if s.logger == nil {
		logger, err := observability.NewLogger(cfg.Observability.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		s.ownLogger = logger
		s.logger = logger.Logger
	}

	s.metrics = observability.NewMetrics()
	s.inFlight = middleware.NewInFlight(s.metrics.InFlightRequests)

	tracer, err := observability.NewTracer(cfg.Observability.Tracing)
	if err != nil {
		s.syncLogger()
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracer = tracer

	monitor, err := observability.NewMonitor(cfg.Observability.Ops,
		[]observability.Reporter{
			observability.NewConsoleReporter(s.logger),
			observability.NewPrometheusReporter(s.metrics),
		},
		observability.WithInFlight(s.inFlight.Load),
		observability.WithDropHook(s.metrics.DroppedEvents.Inc),
	)
	if err != nil {
		s.release(context.Background())
		return nil, fmt.Errorf("failed to initialize monitor: %w", err)
	}
	s.monitor = monitor

	s.app = &app.App{
		DB:        db,
		Log:       s.logFn,
		Logger:    s.logger,
		Name:      cfg.Observability.Tracing.ServiceName,
		Version:   cfg.Observability.Tracing.Version,
		StartTime: time.Now(),
	}

	if err := s.loadRoutes(); err != nil {
		s.release(context.Background())
		return nil, err
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(cfg.RateLimit, constants.PathHealth, cfg.API.DocsPath)
	}

	return s, nil
}

// Start binds the main and metrics listeners and serves in the background.
// When Start returns nil the server is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateBootstrapping)) {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.GetServerAddress())
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GetServerAddress(), err)
	}

	var metricsLn net.Listener
	if s.cfg.Observability.Metrics.Enabled {
		metricsLn, err = lc.Listen(ctx, "tcp", s.cfg.GetMetricsAddress())
		if err != nil {
			_ = ln.Close()
			s.state.Store(int32(StateUninitialized))
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GetMetricsAddress(), err)
		}
	}

	s.addr = listenAddress(s.cfg.Server.Address, ln.Addr())
	s.httpServer = &http.Server{
		Handler:        s.buildHandler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
		ErrorLog:       zap.NewStdLog(s.logger),
	}

	s.serving = new(errgroup.Group)
	s.serving.Go(func() error { return serve(s.httpServer, ln) })

	if metricsLn != nil {
		s.metricsAddr = metricsLn.Addr().String()
		metricsMux := http.NewServeMux()
		metricsMux.Handle(s.cfg.Observability.Metrics.Path, s.metrics.Handler())
		s.metricsServer = &http.Server{
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.serving.Go(func() error { return serve(s.metricsServer, metricsLn) })
		s.logger.Info("Metrics server listening",
			zap.String("address", s.metricsAddr),
			zap.String("path", s.cfg.Observability.Metrics.Path),
		)
	}

	s.monitor.Start(context.WithoutCancel(ctx))
	s.metrics.SetHealthStatus(true)
	s.state.Store(int32(StateListening))

	banner := "Server running on " + s.addr
	s.logFn(banner)
	s.monitor.Log([]string{"info"}, banner)
	s.logger.Info("Server started",
		zap.String("address", s.addr),
		zap.Int("routes", len(s.table.Load().Routes())),
		zap.String("spec_file", s.cfg.API.SpecFile),
	)
	return nil
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listenAddress keeps the configured host but reports the bound port, which
// differs from the configured one when port 0 was requested.
func listenAddress(host string, bound net.Addr) string {
	boundHost, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return bound.String()
	}
	if host == "" {
		host = boundHost
	}
	return net.JoinHostPort(host, port)
}

// Init builds the server and starts listening. db must already be
// connected, Init never connects it.
func Init(ctx context.Context, cfg *config.Config, db database.Checker, opts ...Option) (*Server, error) {
	s, err := New(cfg, db, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		s.release(context.Background())
		return nil, err
	}
	return s, nil
}

// Bootstrap connects db and then calls Init. When the connect fails nothing
// is built and no listener is bound.
func Bootstrap(ctx context.Context, cfg *config.Config, db database.Handle, opts ...Option) (*Server, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return Init(ctx, cfg, db, opts...)
}

// Shutdown stops the monitor and gracefully shuts down the main and metrics
// servers in parallel. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	prev := State(s.state.Swap(int32(StateShutDown)))
	if prev == StateShutDown {
		return nil
	}

	s.logger.Info("Shutting down server...", zap.String("address", s.addr))
	s.metrics.SetHealthStatus(false)

	var errs []error
	if prev == StateListening {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := s.httpServer.Shutdown(gctx); err != nil {
				return fmt.Errorf("main server shutdown: %w", err)
			}
			return nil
		})
		if s.metricsServer != nil {
			g.Go(func() error {
				if err := s.metricsServer.Shutdown(gctx); err != nil {
					return fmt.Errorf("metrics server shutdown: %w", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := s.serving.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("serve: %w", err))
		}
	}

	if err := s.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release stops the background components. It does not touch the listeners.
func (s *Server) release(ctx context.Context) error {
	var errs []error
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	s.syncLogger()
	return errors.Join(errs...)
}

func (s *Server) syncLogger() {
	if s.ownLogger != nil {
		_ = s.ownLogger.Sync()
	}
}

// State reports the lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr is the host:port the server listens on, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// MetricsAddr is the address of the metrics listener, empty when disabled.
func (s *Server) MetricsAddr() string {
	return s.metricsAddr
}

// URL is the base URL clients reach the server at.
func (s *Server) URL() string {
	if s.addr == "" {
		return ""
	}
	return "http://" + s.addr
}

// Monitor exposes the operational monitor.
func (s *Server) Monitor() *observability.Monitor {
	return s.monitor
}

// Metrics exposes the metrics registry of this server.
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// Routes returns the routes currently served.
func (s *Server) Routes() []routes.Route {
	return s.table.Load().Routes()
}

func (s *Server) buildHandler() http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.router.Load().ServeHTTP(w, r)
	})

	// Applied innermost first
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = middleware.RequestSizeLimitMiddleware(s.cfg.Server.MaxRequestSize)(handler)
	handler = middleware.Recover(s.logger)(handler)
	handler = middleware.ResponseLogging(s.monitor, s.inFlight)(handler)
	handler = middleware.RequestHook(s.logFn)(handler)
	handler = middleware.RequestID(handler)

	return handler
}

func docsPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		path += "{$}"
	}
	return http.MethodGet + " " + path
}
