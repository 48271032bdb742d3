package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// DatabaseConfig describes the data store the health endpoint reports on.
// DSN wins over the discrete connection fields when set.
type DatabaseConfig struct {
	Driver          string        `json:"driver" yaml:"driver"`
	DSN             string        `json:"dsn" yaml:"dsn"`
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"password" yaml:"password"`
	Name            string        `json:"name" yaml:"name"`
	SSL             bool          `json:"ssl" yaml:"ssl"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	PingTimeout     time.Duration `json:"ping_timeout" yaml:"ping_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultDatabaseConfig returns a local sqlite database, which needs no server.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          constants.DriverSQLite,
		Name:            "go-spec-serve.db",
		Host:            "localhost",
		Port:            5432,
		ConnectTimeout:  5 * time.Second,
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Validate validates the database configuration
func (d *DatabaseConfig) Validate() error {
	var errs []error

	switch d.Driver {
	case constants.DriverPostgres:
		if d.DSN == "" {
			if d.Host == "" {
				errs = append(errs, errors.New("host cannot be empty"))
			}
			if d.Port < 1 || d.Port > 65535 {
				errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", d.Port))
			}
			if d.Name == "" {
				errs = append(errs, errors.New("name cannot be empty"))
			}
		}
	case constants.DriverSQLite:
		if d.DSN == "" && d.Name == "" {
			errs = append(errs, errors.New("name or dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid driver: %q, must be one of: %s, %s",
			d.Driver, constants.DriverPostgres, constants.DriverSQLite))
	}

	if d.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if d.PingTimeout <= 0 {
		errs = append(errs, errors.New("ping_timeout must be positive"))
	}
	if d.MaxOpenConns < 0 || d.MaxIdleConns < 0 {
		errs = append(errs, errors.New("connection pool sizes cannot be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
