package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name           string
		fileName       string
		fileContent    string
		configFile     string
		envVars        map[string]string
		args           []string
		expectedConfig *Config
		wantErr        bool
	}{
		{
			name:           "Default Config Only",
			expectedConfig: DefaultConfig(),
		},
		{
			name:        "Load from YAML file",
			fileName:    "config.yaml",
			fileContent: `server: {port: "8081"}`,
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = "8081"
				return cfg
			}(),
		},
		{
			name:        "Load from JSON file",
			fileName:    "config.json",
			fileContent: `{"server": {"port": "8082"}, "database": {"driver": "postgres", "name": "app"}}`,
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = "8082"
				cfg.Database.Driver = "postgres"
				cfg.Database.Name = "app"
				return cfg
			}(),
		},
		{
			name:     "YAML durations and reporters",
			fileName: "config.yml",
			fileContent: `
observability:
  ops:
    interval: 250ms
    reporters:
      - name: console
        events: ["*"]
`,
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Observability.Ops.Interval = 250 * time.Millisecond
				cfg.Observability.Ops.Reporters = []ReporterConfig{{Name: "console", Events: []string{"*"}}}
				return cfg
			}(),
		},
		{
			name:       "File not found",
			configFile: "nonexistent.yaml",
			wantErr:    true,
		},
		{
			name:        "Invalid file content",
			fileName:    "config.yaml",
			fileContent: `server: {port: "8081"`,
			wantErr:     true,
		},
		{
			name:        "Unsupported extension",
			fileName:    "config.toml",
			fileContent: `port = 1`,
			wantErr:     true,
		},
		{
			name:        "Env overrides file",
			fileName:    "config.yaml",
			fileContent: `server: {port: "8081"}`,
			envVars: map[string]string{
				"GO_SPEC_SERVE_PORT":      "8083",
				"GO_SPEC_SERVE_DB_DRIVER": "postgres",
				"GO_SPEC_SERVE_DB_NAME":   "orders",
			},
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = "8083"
				cfg.Database.Driver = "postgres"
				cfg.Database.Name = "orders"
				return cfg
			}(),
		},
		{
			name:    "Flags override env",
			envVars: map[string]string{"GO_SPEC_SERVE_PORT": "8083"},
			args:    []string{"--port", "8084", "--validate-requests"},
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = "8084"
				cfg.API.ValidateRequests = true
				return cfg
			}(),
		},
		{
			name:    "Unset flags keep env values",
			envVars: map[string]string{"GO_SPEC_SERVE_LOG_LEVEL": "debug"},
			args:    []string{"--host", "0.0.0.0"},
			expectedConfig: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Address = "0.0.0.0"
				cfg.Observability.Logging.Level = "debug"
				return cfg
			}(),
		},
		{
			name:    "Invalid result is rejected",
			envVars: map[string]string{"GO_SPEC_SERVE_LOG_LEVEL": "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			configFile := tt.configFile
			if tt.fileName != "" {
				configFile = writeConfigFile(t, tt.fileName, tt.fileContent)
			}

			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			RegisterFlags(fs)
			require.NoError(t, fs.Parse(tt.args))

			cfg, err := LoadConfig(configFile, fs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedConfig, cfg)
		})
	}
}

func TestLoadConfig_NilFlags(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, validateFilePath(filepath.Join(t.TempDir(), "config.yaml")))
}
