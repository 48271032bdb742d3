package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/constants"
)

type recordingReporter struct {
	name string

	mu     sync.Mutex
	events []Event
}

func (r *recordingReporter) Name() string { return r.name }

func (r *recordingReporter) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingReporter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestNewMonitor_UnknownReporter(t *testing.T) {
	cfg := config.OpsConfig{
		Interval:  time.Second,
		Reporters: []config.ReporterConfig{{Name: "graphite"}},
	}

	m, err := NewMonitor(cfg, []Reporter{&recordingReporter{name: constants.ReporterConsole}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownReporter))
	assert.Contains(t, err.Error(), "graphite")
	assert.Nil(t, m)
}

func TestMonitor_FiltersByEventKind(t *testing.T) {
	logs := &recordingReporter{name: "logs"}
	all := &recordingReporter{name: "all"}
	star := &recordingReporter{name: "star"}

	cfg := config.OpsConfig{
		Interval: time.Hour,
		Reporters: []config.ReporterConfig{
			{Name: "logs", Events: []string{constants.EventLog}},
			{Name: "all"},
			{Name: "star", Events: []string{"*"}},
		},
	}
	m, err := NewMonitor(cfg, []Reporter{logs, all, star})
	require.NoError(t, err)

	m.Start(context.Background())
	m.Log([]string{"info"}, "hello")
	m.Response(ResponseEvent{Method: "GET", Path: "/", StatusCode: 200})
	m.Stop()

	assert.Equal(t, []string{constants.EventLog}, logs.kinds())
	assert.Equal(t, []string{constants.EventLog, constants.EventResponse}, all.kinds())
	assert.Equal(t, []string{constants.EventLog, constants.EventResponse}, star.kinds())
}

func TestMonitor_EmitDropsWhenFull(t *testing.T) {
	var drops int
	m, err := NewMonitor(config.OpsConfig{Interval: time.Hour}, nil,
		WithBufferSize(2),
		WithDropHook(func() { drops++ }),
	)
	require.NoError(t, err)

	// Not started, so nothing drains the queue.
	for i := 0; i < 5; i++ {
		m.Log(nil, "x")
	}

	assert.Equal(t, int64(3), m.Dropped())
	assert.Equal(t, 3, drops)
}

func TestMonitor_StopDeliversQueuedEvents(t *testing.T) {
	rec := &recordingReporter{name: "rec"}
	m, err := NewMonitor(config.OpsConfig{
		Interval:  time.Hour,
		Reporters: []config.ReporterConfig{{Name: "rec"}},
	}, []Reporter{rec}, WithBufferSize(16))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		m.Log(nil, "queued")
	}
	m.Start(context.Background())
	m.Stop()

	assert.Len(t, rec.kinds(), 10)

	// Emit after Stop is ignored.
	m.Log(nil, "late")
	assert.Len(t, rec.kinds(), 10)
	assert.Equal(t, int64(0), m.Dropped())
}

func TestMonitor_SamplesOps(t *testing.T) {
	rec := &recordingReporter{name: "rec"}
	m, err := NewMonitor(config.OpsConfig{
		Interval:  10 * time.Millisecond,
		Reporters: []config.ReporterConfig{{Name: "rec", Events: []string{constants.EventOps}}},
	}, []Reporter{rec}, WithInFlight(func() int64 { return 4 }))
	require.NoError(t, err)

	m.Start(context.Background())
	assert.Eventually(t, func() bool { return len(rec.kinds()) >= 2 }, time.Second, 5*time.Millisecond)
	m.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotNil(t, rec.events[0].Ops)
	assert.Equal(t, int64(4), rec.events[0].Ops.InFlight)
	assert.Positive(t, rec.events[0].Ops.Goroutines)
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	m, err := NewMonitor(config.DefaultOpsConfig(), []Reporter{
		&recordingReporter{name: constants.ReporterConsole},
		&recordingReporter{name: constants.ReporterPrometheus},
	})
	require.NoError(t, err)

	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestMonitor_DefaultInterval(t *testing.T) {
	m, err := NewMonitor(config.OpsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultOpsInterval, m.interval)
}
