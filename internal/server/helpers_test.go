package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/app"
	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/routes"
)

const testSpec = `openapi: 3.0.3
info:
  title: Test API
  version: 1.0.0
paths:
  /info:
    get:
      operationId: getInfo
      parameters:
        - name: verbose
          in: query
          schema:
            type: boolean
      responses:
        "200":
          description: ok
  /boom:
    get:
      operationId: boom
      responses:
        "200":
          description: ok
  /todo:
    get:
      operationId: notImplemented
      responses:
        "200":
          description: ok
`

// fakeDB is a database.Handle whose connectivity the test controls.
type fakeDB struct {
	connected  atomic.Bool
	connectErr error
	connects   atomic.Int32
	checks     atomic.Int32
}

func (f *fakeDB) Connect(context.Context) error {
	f.connects.Add(1)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeDB) IsConnected(context.Context) bool {
	f.checks.Add(1)
	return f.connected.Load()
}

func (f *fakeDB) Close() error {
	f.connected.Store(false)
	return nil
}

func connectedDB() *fakeDB {
	db := &fakeDB{}
	db.connected.Store(true)
	return db
}

// logCapture records LogFn calls the way a zap sugared Infoln would render them.
type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (c *logCapture) log(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func (c *logCapture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *logCapture) count(line string) int {
	n := 0
	for _, l := range c.snapshot() {
		if l == line {
			n++
		}
	}
	return n
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, specFile string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.API.SpecFile = specFile
	cfg.Observability.Ops.Interval = 50 * time.Millisecond
	return cfg
}

func testRegistry() routes.Registry {
	return routes.Registry{
		"getInfo": func(a *app.App, w http.ResponseWriter, r *http.Request) {
			a.Log("handler", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"ok":true}`)
		},
		"boom": func(a *app.App, w http.ResponseWriter, r *http.Request) {
			panic("handler exploded")
		},
	}
}

// startServer runs Init with test defaults and shuts the server down at the
// end of the test.
func startServer(t *testing.T, cfg *config.Config, db *fakeDB, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop()), WithRegistry(testRegistry())}, opts...)

	srv, err := Init(context.Background(), cfg, db, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}
