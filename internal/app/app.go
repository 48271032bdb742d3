// Package app holds the dependencies shared by every request handler. It is
// built once during bootstrap and never mutated afterwards.
package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/database"
	"github.com/leslieo2/go-spec-serve/internal/observability"
)

// App is the dependency-injection context handed to operation handlers.
type App struct {
	// DB is the read-only database view. Handlers can check connectivity but
	// cannot connect or close it.
	DB        database.Checker
	Log       observability.LogFn
	Logger    *zap.Logger
	Name      string
	Version   string
	StartTime time.Time
}

// Uptime returns how long the process has been serving.
func (a *App) Uptime() time.Duration {
	return time.Since(a.StartTime)
}
