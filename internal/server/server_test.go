package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/observability"
	"github.com/leslieo2/go-spec-serve/internal/server/middleware"
)

func TestHealth_Connected(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, body := get(t, srv.URL()+"/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestHealth_Disconnected(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), &fakeDB{})

	resp, body := get(t, srv.URL()+"/")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"statusCode":500,"error":"Internal Server Error","message":"Database not connected"}`, body)
}

func TestHealth_ProbesOncePerRequestAndIsIdempotent(t *testing.T) {
	db := connectedDB()
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), db)

	for i := 0; i < 3; i++ {
		resp, body := get(t, srv.URL()+"/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)
	}
	assert.Equal(t, int32(3), db.checks.Load())

	// The response follows the database, nothing else.
	db.connected.Store(false)
	for i := 0; i < 2; i++ {
		resp, _ := get(t, srv.URL()+"/")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}
	db.connected.Store(true)
	resp, _ := get(t, srv.URL()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_ExactRootOnly(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, _ := get(t, srv.URL()+"/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHook_RunsOnceBeforeHandler(t *testing.T) {
	logs := &logCapture{}
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB(), WithLogFn(logs.log))

	resp, body := get(t, srv.URL()+"/info?verbose=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, body)

	lines := logs.snapshot()
	start := -1
	for i, l := range lines {
		if l == "NEW REQUEST" {
			start = i
			break
		}
	}
	require.GreaterOrEqual(t, start, 0, "hook did not run: %v", lines)
	require.GreaterOrEqual(t, len(lines), start+7)

	assert.Equal(t, "GET /info", lines[start+1])
	assert.Equal(t, "request path /info", lines[start+2])
	assert.Equal(t, "request method get", lines[start+3])
	assert.Equal(t, "request body <nil>", lines[start+4])
	assert.True(t, strings.HasPrefix(lines[start+5], "request headers map["), lines[start+5])
	assert.Equal(t, "handler /info", lines[start+6])

	assert.Equal(t, 1, logs.count("NEW REQUEST"))
}

func TestHook_RunsOnFailures(t *testing.T) {
	logs := &logCapture{}
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), &fakeDB{}, WithLogFn(logs.log))

	paths := []struct {
		path string
		code int
	}{
		{"/", http.StatusInternalServerError},
		{"/boom", http.StatusInternalServerError},
		{"/nowhere", http.StatusNotFound},
		{"/todo", http.StatusNotImplemented},
	}
	for _, p := range paths {
		resp, _ := get(t, srv.URL()+p.path)
		assert.Equal(t, p.code, resp.StatusCode, p.path)
	}

	assert.Equal(t, len(paths), logs.count("NEW REQUEST"))
	for _, p := range paths {
		assert.Equal(t, 1, logs.count("GET "+p.path), p.path)
	}
}

func TestInit_DefaultLogFnIsSilent(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, _ := get(t, srv.URL()+"/info")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInit_ListeningOnReturn(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	assert.Equal(t, StateListening, srv.State())

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	_ = conn.Close()

	host, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port)
}

func TestInit_Errors(t *testing.T) {
	spec := writeSpec(t, testSpec)

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		opts    []Option
		wantErr error
		contain string
	}{
		{
			name:    "missing document",
			mutate:  func(c *config.Config) { c.API.SpecFile = "does-not-exist.yaml" },
			contain: "failed to load routes",
		},
		{
			name: "unknown reporter",
			mutate: func(c *config.Config) {
				c.Observability.Ops.Reporters = []config.ReporterConfig{{Name: "graphite"}}
			},
			wantErr: observability.ErrUnknownReporter,
		},
		{
			name:    "strict handlers",
			mutate:  func(c *config.Config) { c.API.StrictHandlers = true },
			contain: "GET /todo (notImplemented)",
		},
		{
			name:    "invalid config",
			mutate:  func(c *config.Config) { c.Server.Port = "99999" },
			contain: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, spec)
			tt.mutate(cfg)

			opts := append([]Option{WithLogger(zap.NewNop()), WithRegistry(testRegistry())}, tt.opts...)
			srv, err := Init(context.Background(), cfg, connectedDB(), opts...)
			require.Error(t, err)
			assert.Nil(t, srv)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), err.Error())
			}
			if tt.contain != "" {
				assert.Contains(t, err.Error(), tt.contain)
			}
		})
	}
}

func TestInit_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(t, writeSpec(t, testSpec))
	_, cfg.Server.Port, _ = net.SplitHostPort(taken.Addr().String())

	srv, err := Init(context.Background(), cfg, connectedDB(), WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestBootstrap_ConnectFailureNeverListens(t *testing.T) {
	// Reserve a port, then free it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t, writeSpec(t, testSpec))
	_, cfg.Server.Port, _ = net.SplitHostPort(addr)

	connectErr := errors.New("connection refused")
	db := &fakeDB{connectErr: connectErr}

	srv, err := Bootstrap(context.Background(), cfg, db, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, connectErr))
	assert.Nil(t, srv)
	assert.Equal(t, int32(1), db.connects.Load())
	assert.Equal(t, int32(0), db.checks.Load())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "nothing should listen after a failed connect")
}

func TestBootstrap_ConnectsThenServes(t *testing.T) {
	db := &fakeDB{}
	cfg := testConfig(t, writeSpec(t, testSpec))

	srv, err := Bootstrap(context.Background(), cfg, db, WithLogger(zap.NewNop()), WithRegistry(testRegistry()))
	require.NoError(t, err)
	defer func() { _ = srv.Shutdown(context.Background()) }()

	assert.Equal(t, int32(1), db.connects.Load())

	resp, body := get(t, srv.URL()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestServer_Lifecycle(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, testSpec))
	srv, err := New(cfg, connectedDB(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, srv.State())
	assert.Empty(t, srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateListening, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StateShutDown, srv.State())
	assert.NoError(t, srv.Shutdown(context.Background()))

	// No way back
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	_, err = net.DialTimeout("tcp", srv.Addr(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "bootstrapping", StateBootstrapping.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "shut down", StateShutDown.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestServer_NotImplemented(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, body := get(t, srv.URL()+"/todo")

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	var e middleware.ErrorBody
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	assert.Equal(t, "Not Implemented", e.Error)
}

func TestServer_PanicRecovered(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, _ := get(t, srv.URL()+"/boom")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Still serving
	resp, _ = get(t, srv.URL()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequestValidation(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, testSpec))
	cfg.API.ValidateRequests = true
	srv := startServer(t, cfg, connectedDB())

	resp, _ := get(t, srv.URL()+"/info?verbose=true")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, srv.URL()+"/info?verbose=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e middleware.ErrorBody
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	assert.Equal(t, 400, e.StatusCode)
	assert.Equal(t, "Bad Request", e.Error)
	assert.Contains(t, e.Message, "verbose")
}

func TestServer_Docs(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())

	resp, body := get(t, srv.URL()+"/api-docs")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, srv.URL(), doc.Servers[0].URL)
}

func TestServer_RootOperationIsShadowed(t *testing.T) {
	spec := testSpec + `  /:
    get:
      operationId: getRoot
      responses:
        "200":
          description: ok
`
	srv := startServer(t, testConfig(t, writeSpec(t, spec)), &fakeDB{})

	resp, _ := get(t, srv.URL()+"/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_Reload(t *testing.T) {
	specFile := writeSpec(t, testSpec)
	srv := startServer(t, testConfig(t, specFile), connectedDB())

	resp, _ := get(t, srv.URL()+"/extra")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	extended := testSpec + `  /extra:
    get:
      operationId: getExtra
      responses:
        "200":
          description: ok
`
	require.NoError(t, os.WriteFile(specFile, []byte(extended), 0o644))
	require.NoError(t, srv.Reload(context.Background()))

	// Served, but nothing handles the new operation yet
	resp, _ = get(t, srv.URL()+"/extra")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, "routes", srv.Name())

	// A broken document keeps the previous routes.
	require.NoError(t, os.WriteFile(specFile, []byte("not: [valid"), 0o644))
	assert.Error(t, srv.Reload(context.Background()))

	resp, _ = get(t, srv.URL()+"/extra")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, testSpec))
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.BurstSize = 1
	logs := &logCapture{}
	srv := startServer(t, cfg, connectedDB(), WithLogFn(logs.log))

	resp, _ := get(t, srv.URL()+"/info")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL()+"/info")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// The health route is never limited
	for i := 0; i < 3; i++ {
		resp, _ = get(t, srv.URL()+"/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Rejected requests still went through the hook
	assert.Equal(t, 2, logs.count("GET /info"))
}

func TestServer_Metrics(t *testing.T) {
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB())
	require.NotEmpty(t, srv.MetricsAddr())

	get(t, srv.URL()+"/info")

	assert.Eventually(t, func() bool {
		_, body := get(t, "http://"+srv.MetricsAddr()+"/metrics")
		return strings.Contains(body, `http_requests_total{endpoint="GET /info",method="GET",status_code="200"} 1`) &&
			strings.Contains(body, "app_health_status 1") &&
			strings.Contains(body, "app_ops_goroutines")
	}, 3*time.Second, 50*time.Millisecond)
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, testSpec))
	cfg.Observability.Metrics.Enabled = false
	srv := startServer(t, cfg, connectedDB())

	assert.Empty(t, srv.MetricsAddr())
}

func TestServer_ConsoleReporter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), &fakeDB{}, WithLogger(zap.New(core)))

	get(t, srv.URL()+"/")

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Server running on "+srv.Addr()).Len() == 1 &&
			logs.FilterMessage("HTTP request").FilterField(zap.Int("status_code", 500)).Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Ops samples only go to prometheus by default
	assert.Zero(t, logs.FilterMessage("ops").Len())
}

func TestServer_BannerThroughLogFn(t *testing.T) {
	logs := &logCapture{}
	srv := startServer(t, testConfig(t, writeSpec(t, testSpec)), connectedDB(), WithLogFn(logs.log))

	assert.Equal(t, 1, logs.count("Server running on "+srv.Addr()))
}
