package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/keys.db", cfg.Database.DSN)
	assert.Equal(t, 86400, cfg.RateLimit.Key.WindowSeconds)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.IP.Window())
	assert.Equal(t, 100, cfg.RateLimit.Key.MaxRequests)
	assert.Equal(t, 20, cfg.RateLimit.IP.MaxRequests)
	assert.Equal(t, 5, cfg.RateLimit.Block.ViolationThreshold)
	assert.Equal(t, []string{"main", "master"}, cfg.GitHub.Branches)
	assert.Equal(t, []string{"README.md", "Readme.md", "readme.md", "README.MD"}, cfg.GitHub.Filenames)
	assert.Empty(t, cfg.Security.DemoKeys)
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
ratelimit:
  key:
    window_seconds: 3600
    max_requests: 10
security:
  demo_keys:
    - demo-public
github:
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("SUMMARIZER_DATABASE_DRIVER", "postgres")
	t.Setenv("SUMMARIZER_DATABASE_DSN", "postgres://localhost/keys?sslmode=disable")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3600, cfg.RateLimit.Key.WindowSeconds)
	assert.Equal(t, 10, cfg.RateLimit.Key.MaxRequests)
	assert.Equal(t, []string{"demo-public"}, cfg.Security.DemoKeys)
	assert.Equal(t, 3*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/keys?sslmode=disable", cfg.Database.DSN)
}

func TestLoadFile_ExplicitZeroDisablesLimits(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
ratelimit:
  key:
    max_requests: 0
  ip:
    max_requests: 0
  block:
    violation_threshold: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RateLimit.Key.MaxRequests)
	assert.Equal(t, 0, cfg.RateLimit.IP.MaxRequests)
	assert.Equal(t, 0, cfg.RateLimit.Block.ViolationThreshold)
	// 窗口长度仍按默认值补齐
	assert.Equal(t, 86400, cfg.RateLimit.Key.WindowSeconds)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	require.NoError(t, validate(cfg))

	cfg.Server.Port = 70000
	assert.Error(t, validate(cfg))

	cfg.Server.Port = 8080
	cfg.Database.Driver = "mongo"
	assert.Error(t, validate(cfg))

	cfg.Database.Driver = "sqlite"
	cfg.RateLimit.IP.MaxRequests = -1
	assert.Error(t, validate(cfg))
}
