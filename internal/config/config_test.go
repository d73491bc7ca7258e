package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/cloudsync"
	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "none", cfg.Bus.Backend)
	assert.Equal(t, experiment.DefaultRequirements(), cfg.Experiment)
	assert.Equal(t, cloudsync.DefaultConfig(), cfg.Sync)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimitInterval())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
experiment:
  questions_required: 5
sync:
  debounce: 1s
  retry:
    max_retries: 4
`), 0o600))

	t.Setenv("SYNC_RESOLUTION", "merge")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Experiment.QuestionsRequired)
	assert.Equal(t, 3, cfg.Experiment.MetricsRequired)
	assert.Equal(t, time.Second, cfg.Sync.Debounce)
	assert.Equal(t, 4, cfg.Sync.Retry.MaxRetries)
	assert.Equal(t, cloudsync.ResolutionMerge, cfg.Sync.Resolution)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage backend", map[string]string{"STORAGE_BACKEND": "sqlite"}},
		{"redis storage without url", map[string]string{"STORAGE_BACKEND": "redis"}},
		{"nats bus without url", map[string]string{"BUS_BACKEND": "nats"}},
		{"unknown resolution", map[string]string{"SYNC_RESOLUTION": "local_first"}},
		{"zero requirement", map[string]string{"EXPERIMENT_METRICS_REQUIRED": "0"}},
		{"retry delays inverted", map[string]string{"SYNC_RETRY_MAX_DELAY": "10ms"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate_BackendsWithURLs(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("BUS_BACKEND", "nats")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "nats", cfg.Bus.Backend)
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
