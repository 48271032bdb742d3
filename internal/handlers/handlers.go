// Package handlers holds the operation handlers for api/openapi.yaml.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/app"
	"github.com/leslieo2/go-spec-serve/internal/constants"
	"github.com/leslieo2/go-spec-serve/internal/routes"
)

const (
	OpGetServiceInfo    = "getServiceInfo"
	OpGetDatabaseStatus = "getDatabaseStatus"
)

type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type DatabaseStatus struct {
	Connected bool `json:"connected"`
}

// Registry returns the handlers keyed by operationId.
func Registry() routes.Registry {
	return routes.Registry{
		OpGetServiceInfo:    getServiceInfo,
		OpGetDatabaseStatus: getDatabaseStatus,
	}
}

func getServiceInfo(a *app.App, w http.ResponseWriter, r *http.Request) {
	writeJSON(a, w, http.StatusOK, ServiceInfo{
		Name:    a.Name,
		Version: a.Version,
		Uptime:  a.Uptime().Round(time.Second).String(),
	})
}

func getDatabaseStatus(a *app.App, w http.ResponseWriter, r *http.Request) {
	writeJSON(a, w, http.StatusOK, DatabaseStatus{Connected: a.DB.IsConnected(r.Context())})
}

func writeJSON(a *app.App, w http.ResponseWriter, status int, v any) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && a.Logger != nil {
		a.Logger.Warn("Failed to write response", zap.Error(err))
	}
}
