package observability

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leslieo2/go-spec-serve/internal/config"
)

type Logger struct {
	*zap.Logger
	flush func() error
}

// NewLogger builds a zap logger from the logging configuration. Unknown levels
// fall back to info and unknown formats to console.
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	var zapConfig zap.Config

	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if cfg.Format == "json" {
		zapConfig.Encoding = "json"
	} else {
		zapConfig.Encoding = "console"
	}
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Output != "" {
		zapConfig.OutputPaths = []string{cfg.Output}
	}

	if !cfg.Buffered {
		logger, err := zapConfig.Build()
		if err != nil {
			return nil, err
		}
		return &Logger{Logger: logger}, nil
	}

	sink, _, err := zap.Open(zapConfig.OutputPaths...)
	if err != nil {
		return nil, err
	}
	ws := &zapcore.BufferedWriteSyncer{WS: sink, FlushInterval: time.Second}

	var encoder zapcore.Encoder
	if zapConfig.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(zapConfig.EncoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
	}
	core := zapcore.NewCore(encoder, ws, zapConfig.Level)
	logger := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))

	return &Logger{Logger: logger, flush: ws.Stop}, nil
}

// Sync flushes buffered entries. For buffered loggers it also stops the
// background flusher, so it belongs in shutdown paths only.
func (l *Logger) Sync() error {
	if l.flush != nil {
		return l.flush()
	}
	return l.Logger.Sync()
}

// LogFn is the request diagnostics logger. Arguments are joined with spaces
// the way fmt.Sprintln does.
type LogFn func(args ...any)

// NopLogFn discards everything. It is the default when no LogFn is supplied.
func NopLogFn(...any) {}

// NewLogFn adapts a zap logger into a LogFn writing at info level.
func NewLogFn(logger *zap.Logger) LogFn {
	if logger == nil {
		return NopLogFn
	}
	sugar := logger.Sugar()
	return func(args ...any) {
		sugar.Infoln(args...)
	}
}
