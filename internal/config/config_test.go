package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err, "explicit config path must exist")

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "enliterate.db", cfg.Database.DSN)
	assert.True(t, cfg.Graph.MultiDatabaseSupported)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.RetryBackoffInitial)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.RetryBackoffCap)
	assert.Equal(t, 1536, cfg.Embedding.Dims)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
graph:
  uri: bolt://graph:7687
  username: neo4j
  multi_database_supported: false
pipeline:
  worker_count: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "bolt://graph:7687", cfg.Graph.URI)
	assert.False(t, cfg.Graph.MultiDatabaseSupported)
	assert.Equal(t, 4, cfg.Pipeline.WorkerCount)
	// Untouched values keep their defaults.
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ENLITERATE_SERVER_PORT", "7777")
	t.Setenv("ENLITERATE_SERVICES_TEST_RIGHTS_OVERRIDE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.True(t, cfg.Services.TestRightsOverride)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pipeline.RetryBackoffInitial = time.Hour
	cfg.Pipeline.RetryBackoffCap = time.Minute
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Graph.URI = "bolt://graph:7687"
	cfg.Graph.Username = ""
	assert.Error(t, cfg.Validate())
}
