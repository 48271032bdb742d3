// Package database provides the data-store handle the service connects at
// startup and the health endpoint queries afterwards.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/constants"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrAlreadyConnected  = errors.New("database already connected")
	ErrNotConnected      = errors.New("database not connected")
)

// Checker is the read-only view of a Handle. It cannot change connection state.
type Checker interface {
	IsConnected(ctx context.Context) bool
}

// Handle is the process-lifetime database capability. Connect is called once
// during bootstrap, before the handle is shared with request handlers.
type Handle interface {
	Checker
	Connect(ctx context.Context) error
	Close() error
}

// SQL is a Handle backed by a database/sql pool.
type SQL struct {
	cfg        config.DatabaseConfig
	driverName string
	dsn        string
	logger     *zap.Logger

	db        atomic.Pointer[sqlx.DB]
	connected atomic.Bool
}

// New validates the configuration and prepares a handle. No connection is
// made until Connect.
func New(cfg config.DatabaseConfig, logger *zap.Logger) (*SQL, error) {
	driverName, dsn, err := DataSource(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQL{
		cfg:        cfg,
		driverName: driverName,
		dsn:        dsn,
		logger:     logger.With(zap.String("database_driver", cfg.Driver)),
	}, nil
}

// DataSource maps the configured driver to a database/sql driver name and DSN.
func DataSource(cfg config.DatabaseConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case constants.DriverPostgres:
		if cfg.DSN != "" {
			return "pgx", cfg.DSN, nil
		}
		params := url.Values{}
		params.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
		params.Set("application_name", "go-spec-serve")
		if cfg.SSL {
			params.Set("sslmode", "require")
		} else {
			params.Set("sslmode", "disable")
		}
		uri := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:     cfg.Name,
			RawQuery: params.Encode(),
		}
		return "pgx", uri.String(), nil
	case constants.DriverSQLite:
		if cfg.DSN != "" {
			return "sqlite", cfg.DSN, nil
		}
		busy := cfg.ConnectTimeout.Milliseconds()
		return "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Name, busy), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Connect opens the pool and verifies it with a ping. It is the only
// operation that changes the handle's state.
func (s *SQL) Connect(ctx context.Context) error {
	if s.connected.Load() {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, s.driverName, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", s.cfg.Driver, err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if !s.db.CompareAndSwap(nil, db) {
		_ = db.Close()
		return ErrAlreadyConnected
	}
	s.connected.Store(true)

	s.logger.Info("Database connected")
	return nil
}

// IsConnected pings the pool. It reports false before Connect, after Close,
// and whenever the ping fails or exceeds the ping timeout.
func (s *SQL) IsConnected(ctx context.Context) bool {
	if !s.connected.Load() {
		return false
	}
	db := s.db.Load()
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		s.logger.Warn("Database ping failed", zap.Error(err))
		return false
	}
	return true
}

// DB exposes the underlying pool to operation handlers. It returns
// ErrNotConnected before Connect.
func (s *SQL) DB() (*sqlx.DB, error) {
	db := s.db.Load()
	if db == nil || !s.connected.Load() {
		return nil, ErrNotConnected
	}
	return db, nil
}

// Close releases the pool.
func (s *SQL) Close() error {
	s.connected.Store(false)
	db := s.db.Swap(nil)
	if db == nil {
		return nil
	}
	return db.Close()
}
