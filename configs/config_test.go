package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	einoconfig "colpali-server/internal/eino/config"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string {
		return m[key]
	}
}

func TestDefaultConfigRequiresAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")

	cfg.Auth.APIKey = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(nil, envMap(map[string]string{
		"API_KEY":              "secret",
		"COLPALI_PORT":         "9100",
		"EMBEDDING_MODEL":      "vidore/colpali-v1.3",
		"EMBEDDING_BATCH_SIZE": "4",
		"EMBEDDING_PROVIDER":   "hash",
		"INFERENCE_BASE_URL":   "http://gpu:9000",
		"LOG_LEVEL":            "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "vidore/colpali-v1.3", cfg.Eino.Invoker.Model)
	assert.Equal(t, 4, cfg.Eino.Batch.Size)
	assert.Equal(t, "hash", cfg.Eino.Invoker.Provider)
	assert.Equal(t, "http://gpu:9000", cfg.Eino.Invoker.Remote.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(nil, envMap(map[string]string{"API_KEY": "secret"}))
	require.NoError(t, err)

	assert.Equal(t, einoconfig.DefaultModel, cfg.Eino.Invoker.Model)
	assert.Equal(t, einoconfig.DefaultBatchSize, cfg.Eino.Batch.Size)
	assert.Equal(t, "remote", cfg.Eino.Invoker.Provider)
	assert.Zero(t, cfg.Eino.Batch.PrefetchDepth)
	assert.False(t, cfg.Eino.Batch.ExclusiveInvoker)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := map[string]map[string]string{
		"missing api key":    {},
		"bad port":           {"API_KEY": "k", "COLPALI_PORT": "http"},
		"bad batch size":     {"API_KEY": "k", "EMBEDDING_BATCH_SIZE": "many"},
		"zero batch size":    {"API_KEY": "k", "EMBEDDING_BATCH_SIZE": "0"},
		"unknown provider":   {"API_KEY": "k", "EMBEDDING_PROVIDER": "local"},
		"openai without key": {"API_KEY": "k", "EMBEDDING_PROVIDER": "openai"},
		"invalid log level":  {"API_KEY": "k", "LOG_LEVEL": "trace"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(nil, envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
auth:
  api_key: from-file
eino:
  invoker:
    provider: hash
    hash:
      dimension: 64
  batch:
    size: 8
    prefetch_depth: 2
`), 0o600))

	cfg, err := load([]string{filepath.Join(dir, "missing.yaml"), path}, envMap(map[string]string{
		"API_KEY": "from-env",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.APIKey)
	assert.Equal(t, "hash", cfg.Eino.Invoker.Provider)
	assert.Equal(t, 64, cfg.Eino.Invoker.Hash.Dimension)
	assert.Equal(t, 4, cfg.Eino.Invoker.Hash.PatchGrid)
	assert.Equal(t, 8, cfg.Eino.Batch.Size)
	assert.Equal(t, 2, cfg.Eino.Batch.PrefetchDepth)
	assert.Equal(t, einoconfig.DefaultModel, cfg.Eino.Invoker.Model)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := load([]string{path}, envMap(map[string]string{"API_KEY": "k"}))
	assert.Error(t, err)
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{"stdout text", LoggingConfig{Level: "info", Output: "stdout"}, false},
		{"json", LoggingConfig{Level: "debug", Output: "stderr", Format: "json"}, false},
		{"discard", LoggingConfig{Level: "info", Output: "discard", Format: "text"}, false},
		{"file without path", LoggingConfig{Level: "info", Output: "file"}, true},
		{"bad format", LoggingConfig{Level: "info", Output: "stdout", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
