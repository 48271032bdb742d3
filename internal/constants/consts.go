package constants

import "time"

// Environment variable constants
const (
	EnvHost              = "GO_SPEC_SERVE_HOST"
	EnvPort              = "GO_SPEC_SERVE_PORT"
	EnvMetricsPort       = "GO_SPEC_SERVE_METRICS_PORT"
	EnvReadTimeout       = "GO_SPEC_SERVE_READ_TIMEOUT"
	EnvWriteTimeout      = "GO_SPEC_SERVE_WRITE_TIMEOUT"
	EnvIdleTimeout       = "GO_SPEC_SERVE_IDLE_TIMEOUT"
	EnvMaxRequestSize    = "GO_SPEC_SERVE_MAX_REQUEST_SIZE"
	EnvShutdownTimeout   = "GO_SPEC_SERVE_SHUTDOWN_TIMEOUT"
	EnvSpecFile          = "GO_SPEC_SERVE_SPEC_FILE"
	EnvValidateRequests  = "GO_SPEC_SERVE_VALIDATE_REQUESTS"
	EnvHotReload         = "GO_SPEC_SERVE_HOT_RELOAD"
	EnvHotReloadDebounce = "GO_SPEC_SERVE_HOT_RELOAD_DEBOUNCE"
	EnvLogLevel          = "GO_SPEC_SERVE_LOG_LEVEL"
	EnvLogFormat         = "GO_SPEC_SERVE_LOG_FORMAT"
	EnvOpsInterval       = "GO_SPEC_SERVE_OPS_INTERVAL"
	EnvDBDriver          = "GO_SPEC_SERVE_DB_DRIVER"
	EnvDBDSN             = "GO_SPEC_SERVE_DB_DSN"
	EnvDBHost            = "GO_SPEC_SERVE_DB_HOST"
	EnvDBPort            = "GO_SPEC_SERVE_DB_PORT"
	EnvDBUser            = "GO_SPEC_SERVE_DB_USER"
	EnvDBPassword        = "GO_SPEC_SERVE_DB_PASSWORD"
	EnvDBName            = "GO_SPEC_SERVE_DB_NAME"
	EnvRateLimitEnabled  = "GO_SPEC_SERVE_RATE_LIMIT_ENABLED"
	EnvRateLimitRPS      = "GO_SPEC_SERVE_RATE_LIMIT_RPS"
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
)

// Content type constants
const (
	ContentTypeJSON = "application/json"
)

// Rate limiting headers
const (
	HeaderXRateLimitLimit     = "X-RateLimit-Limit"
	HeaderXRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderXRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter          = "Retry-After"
)

// Rate limiter internal constants
const (
	// RateLimitCleanupInterval is the interval for cleaning up rate limit cache
	RateLimitCleanupInterval = 5 * time.Minute
	// RateLimitMaxCacheSize is the maximum size of the rate limit cache
	RateLimitMaxCacheSize = 10000
)

// Paths served by the bootstrap itself rather than the API document
const (
	PathHealth  = "/"
	PathDocs    = "/api-docs"
	PathMetrics = "/metrics"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Reporter names understood by the operational monitor
const (
	ReporterConsole    = "console"
	ReporterPrometheus = "prometheus"
)

// Monitor event kinds
const (
	EventOps      = "ops"
	EventResponse = "response"
	EventLog      = "log"
)

// DefaultOpsInterval is how often the monitor samples process state.
const DefaultOpsInterval = 1000 * time.Millisecond
