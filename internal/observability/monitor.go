package observability

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/constants"
)

var ErrUnknownReporter = errors.New("unknown reporter")

const defaultEventBuffer = 1024

// OpsSample is a point-in-time view of the process.
type OpsSample struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	HeapSys    uint64
	GCCycles   uint32
	InFlight   int64
}

// ResponseEvent describes one completed request.
type ResponseEvent struct {
	RequestID    string
	Method       string
	Path         string
	Route        string
	StatusCode   int
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
	RemoteAddr   string
	UserAgent    string
}

// Event is what reporters receive. Exactly one of Ops and Response is set for
// ops and response events, log events carry Tags and Message.
type Event struct {
	Kind      string
	Timestamp time.Time
	Tags      []string
	Message   string
	Ops       *OpsSample
	Response  *ResponseEvent
}

// Reporter is a named output sink.
type Reporter interface {
	Name() string
	Report(Event)
}

type subscription struct {
	reporter Reporter
	all      bool
	kinds    map[string]bool
}

func (s subscription) accepts(kind string) bool {
	return s.all || s.kinds[kind]
}

// Monitor samples process state on an interval and fans events out to the
// reporters subscribed to their kind. Emit never blocks: when the queue is
// full the event is dropped.
type Monitor struct {
	interval  time.Duration
	subs      []subscription
	inFlight  func() int64
	onDrop    func()
	startTime time.Time

	events  chan Event
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
	dropped atomic.Int64
}

type MonitorOption func(*Monitor)

// WithInFlight supplies the in-flight request count for ops samples.
func WithInFlight(f func() int64) MonitorOption {
	return func(m *Monitor) { m.inFlight = f }
}

// WithDropHook is called for every dropped event.
func WithDropHook(f func()) MonitorOption {
	return func(m *Monitor) { m.onDrop = f }
}

// WithBufferSize overrides the event queue capacity.
func WithBufferSize(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

// NewMonitor resolves each configured reporter by name among available.
// A name that is not available fails the whole monitor.
func NewMonitor(cfg config.OpsConfig, available []Reporter, opts ...MonitorOption) (*Monitor, error) {
	byName := make(map[string]Reporter, len(available))
	for _, r := range available {
		byName[r.Name()] = r
	}

	m := &Monitor{
		interval:  cfg.Interval,
		inFlight:  func() int64 { return 0 },
		onDrop:    func() {},
		startTime: time.Now(),
		events:    make(chan Event, defaultEventBuffer),
	}
	if m.interval <= 0 {
		m.interval = constants.DefaultOpsInterval
	}

	for _, rc := range cfg.Reporters {
		r, ok := byName[rc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownReporter, rc.Name)
		}
		sub := subscription{reporter: r, all: len(rc.Events) == 0, kinds: make(map[string]bool)}
		for _, e := range rc.Events {
			if e == "*" {
				sub.all = true
			}
			sub.kinds[e] = true
		}
		m.subs = append(m.subs, sub)
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Start launches the sampler and the dispatcher. Calling it twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(2)
	go m.sample(ctx)
	go m.dispatch(ctx)
}

// Stop halts sampling, delivers whatever is still queued and waits for both
// goroutines to exit.
func (m *Monitor) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Emit queues an event for the reporters.
func (m *Monitor) Emit(e Event) {
	if m.stopped.Load() {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case m.events <- e:
	default:
		m.dropped.Add(1)
		m.onDrop()
	}
}

// Log emits a tagged log event.
func (m *Monitor) Log(tags []string, message string) {
	m.Emit(Event{Kind: constants.EventLog, Tags: tags, Message: message})
}

// Response emits a response event.
func (m *Monitor) Response(r ResponseEvent) {
	m.Emit(Event{Kind: constants.EventResponse, Response: &r})
}

// Dropped returns how many events were discarded on a full queue.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// Sample takes an ops sample now.
func (m *Monitor) Sample() OpsSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return OpsSample{
		Uptime:     time.Since(m.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		GCCycles:   ms.NumGC,
		InFlight:   m.inFlight(),
	}
}

func (m *Monitor) sample(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Sample()
			m.Emit(Event{Kind: constants.EventOps, Ops: &s})
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.drain()
			return
		case e := <-m.events:
			m.deliver(e)
		}
	}
}

func (m *Monitor) drain() {
	for {
		select {
		case e := <-m.events:
			m.deliver(e)
		default:
			return
		}
	}
}

func (m *Monitor) deliver(e Event) {
	for _, s := range m.subs {
		if s.accepts(e.Kind) {
			s.reporter.Report(e)
		}
	}
}
