package config

import (
	"errors"
	"strings"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// APIConfig points at the OpenAPI document that describes the routes.
type APIConfig struct {
	SpecFile         string `json:"spec_file" yaml:"spec_file"`
	DocsPath         string `json:"docs_path" yaml:"docs_path"`
	ValidateRequests bool   `json:"validate_requests" yaml:"validate_requests"`
	// StrictHandlers turns an operation without a registered handler into a startup error.
	StrictHandlers bool `json:"strict_handlers" yaml:"strict_handlers"`
}

// DefaultAPIConfig returns the default API configuration
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		SpecFile: "api/openapi.yaml",
		DocsPath: constants.PathDocs,
	}
}

// Validate validates the API configuration
func (a *APIConfig) Validate() error {
	var errs []error

	if a.SpecFile == "" {
		errs = append(errs, errors.New("spec_file cannot be empty"))
	}
	if !strings.HasPrefix(a.DocsPath, "/") {
		errs = append(errs, errors.New("docs_path must start with /"))
	}
	if a.DocsPath == constants.PathHealth {
		errs = append(errs, errors.New("docs_path cannot shadow the health route"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
