package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "train", cfg.Namespace)
	assert.Equal(t, time.Second, cfg.Reconciler.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.MinBackoff)
	assert.InDelta(t, 0.2, cfg.Reconciler.MaxFailureRatio, 1e-9)

	// The vault password has no default
	assert.Error(t, cfg.Validate())
	cfg.SecretKey = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/train
listen: 0.0.0.0:9090
secret_key: hunter2
log:
  level: debug
  json: true
reconciler:
  min_backoff: 2m
  concurrency: 8
runner:
  qps: 0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/train", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 2*time.Minute, cfg.Reconciler.MinBackoff)
	assert.Equal(t, 8, cfg.Reconciler.Concurrency)
	assert.Zero(t, cfg.Runner.QPS)

	// Untouched keys keep their defaults
	assert.Equal(t, "train", cfg.Namespace)
	assert.Equal(t, time.Second, cfg.Reconciler.RescheduleInterval)
	assert.Equal(t, "kubectl", cfg.Runner.Kubectl)

	opts := cfg.ReconcilerOptions()
	assert.Equal(t, "train", opts.Namespace)
	assert.Equal(t, 8, opts.Concurrency)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconciler: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"ratio above one", func(c *Config) { c.Reconciler.MaxFailureRatio = 1.5 }},
		{"zero concurrency", func(c *Config) { c.Reconciler.Concurrency = 0 }},
		{"zero sync interval", func(c *Config) { c.Reconciler.SyncInterval = 0 }},
		{"bad listen", func(c *Config) { c.Listen = "nowhere" }},
		{"bad namespace", func(c *Config) { c.Namespace = "Not_A_Namespace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SecretKey = "pw"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
