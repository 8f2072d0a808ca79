// Package config loads the server configuration from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BinJu/train/pkg/reconciler"
	"github.com/BinJu/train/pkg/scheduler"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LogConfig selects the log level and format
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// JSON forces JSON output; otherwise it is used only off a terminal
	JSON bool `yaml:"json"`
}

// SchedulerConfig tunes the dispatch loop
type SchedulerConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout" validate:"gt=0"`
}

// ReconcilerConfig tunes the two reconciliation passes
type ReconcilerConfig struct {
	SyncInterval       time.Duration `yaml:"sync_interval" validate:"gt=0"`
	RescheduleInterval time.Duration `yaml:"reschedule_interval" validate:"gt=0"`
	MinBackoff         time.Duration `yaml:"min_backoff" validate:"gte=0"`
	MaxFailureRatio    float64       `yaml:"max_failure_ratio" validate:"gte=0,lte=1"`
	Concurrency        int           `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// RunnerConfig locates the Tekton and kubectl binaries and limits their use
type RunnerConfig struct {
	Tkn     string  `yaml:"tkn" validate:"required"`
	Kubectl string  `yaml:"kubectl" validate:"required"`
	QPS     float64 `yaml:"qps" validate:"gte=0"`
	Burst   int     `yaml:"burst" validate:"gte=0"`
}

// Config is the full server configuration
type Config struct {
	DataDir   string `yaml:"data_dir" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required,hostname_rfc1123"`
	Listen    string `yaml:"listen" validate:"required,hostname_port"`
	// SecretKey is the password vault data is encrypted with
	SecretKey string `yaml:"secret_key" validate:"required"`

	Log        LogConfig        `yaml:"log"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Runner     RunnerConfig     `yaml:"runner"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	rc := reconciler.DefaultConfig()
	return &Config{
		DataDir:   "./train-data",
		Namespace: rc.Namespace,
		Listen:    "127.0.0.1:8080",
		Log:       LogConfig{Level: "info"},
		Scheduler: SchedulerConfig{PollTimeout: scheduler.DefaultPollTimeout},
		Reconciler: ReconcilerConfig{
			SyncInterval:       rc.SyncInterval,
			RescheduleInterval: rc.RescheduleInterval,
			MinBackoff:         rc.MinBackoff,
			MaxFailureRatio:    rc.MaxFailureRatio,
			Concurrency:        rc.Concurrency,
		},
		Runner: RunnerConfig{
			Tkn:     "tkn",
			Kubectl: "kubectl",
			QPS:     5,
			Burst:   10,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration once all overrides are applied
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ReconcilerOptions converts the reconciler section for reconciler.NewReconciler
func (c *Config) ReconcilerOptions() reconciler.Config {
	return reconciler.Config{
		Namespace:          c.Namespace,
		SyncInterval:       c.Reconciler.SyncInterval,
		RescheduleInterval: c.Reconciler.RescheduleInterval,
		MinBackoff:         c.Reconciler.MinBackoff,
		MaxFailureRatio:    c.Reconciler.MaxFailureRatio,
		Concurrency:        c.Reconciler.Concurrency,
	}
}
