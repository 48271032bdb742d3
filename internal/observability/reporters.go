package observability

import (
	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// ConsoleReporter writes events as structured log lines.
type ConsoleReporter struct {
	logger *zap.Logger
}

func NewConsoleReporter(logger *zap.Logger) *ConsoleReporter {
	return &ConsoleReporter{logger: logger}
}

func (c *ConsoleReporter) Name() string { return constants.ReporterConsole }

func (c *ConsoleReporter) Report(e Event) {
	switch e.Kind {
	case constants.EventOps:
		if e.Ops == nil {
			return
		}
		c.logger.Info("ops",
			zap.Duration("uptime", e.Ops.Uptime),
			zap.Int("goroutines", e.Ops.Goroutines),
			zap.Uint64("heap_alloc", e.Ops.HeapAlloc),
			zap.Uint64("heap_sys", e.Ops.HeapSys),
			zap.Uint32("gc_cycles", e.Ops.GCCycles),
			zap.Int64("in_flight", e.Ops.InFlight),
		)
	case constants.EventResponse:
		if e.Response == nil {
			return
		}
		r := e.Response
		c.logger.Info("HTTP request",
			zap.String("request_id", r.RequestID),
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status_code", r.StatusCode),
			zap.Duration("duration", r.Duration),
			zap.Int64("response_size", r.ResponseSize),
			zap.String("user_agent", r.UserAgent),
		)
	case constants.EventLog:
		c.logger.Info(e.Message, zap.Strings("tags", e.Tags), zap.Time("event_time", e.Timestamp))
	}
}

// PrometheusReporter records ops samples and responses into Metrics.
type PrometheusReporter struct {
	metrics *Metrics
}

func NewPrometheusReporter(m *Metrics) *PrometheusReporter {
	return &PrometheusReporter{metrics: m}
}

func (p *PrometheusReporter) Name() string { return constants.ReporterPrometheus }

func (p *PrometheusReporter) Report(e Event) {
	switch e.Kind {
	case constants.EventOps:
		if e.Ops != nil {
			p.metrics.RecordOps(*e.Ops)
		}
	case constants.EventResponse:
		if r := e.Response; r != nil {
			endpoint := r.Route
			if endpoint == "" {
				endpoint = "unmatched"
			}
			p.metrics.RecordRequest(r.Method, endpoint, r.StatusCode, r.Duration, r.RequestSize, r.ResponseSize)
		}
	}
}
