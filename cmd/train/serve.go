package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BinJu/train/pkg/api"
	"github.com/BinJu/train/pkg/config"
	"github.com/BinJu/train/pkg/events"
	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/metrics"
	"github.com/BinJu/train/pkg/queue"
	"github.com/BinJu/train/pkg/reconciler"
	"github.com/BinJu/train/pkg/rollout"
	"github.com/BinJu/train/pkg/runner"
	"github.com/BinJu/train/pkg/scheduler"
	"github.com/BinJu/train/pkg/security"
	"github.com/BinJu/train/pkg/storage"
	"github.com/spf13/cobra"
)

// secretKeyEnv supplies the vault password when the config file does not
const secretKeyEnv = "TRAIN_SECRET_KEY"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, reconciler and API server",
	Long: `Run the Train engine: the dispatch loop consuming the artifact queue, the
status sync and reschedule passes, and the HTTP API.

The vault password is read from secret_key in the config file or from the
TRAIN_SECRET_KEY environment variable.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "YAML configuration file")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().String("listen", "", "API listen address (overrides config)")
	serveCmd.Flags().String("namespace", "", "Kubernetes namespace for runs (overrides config)")
	serveCmd.Flags().Bool("json-logs", false, "Force JSON log output")
	serveCmd.Flags().Bool("reset-queue", false, "Drop every queued artifact id on startup")
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("namespace") {
		cfg.Namespace, _ = cmd.Flags().GetString("namespace")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("json-logs") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("json-logs")
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = os.Getenv(secretKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	metrics.SetVersion(Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, "ok")

	q, err := queue.OpenSQLite(ctx, filepath.Join(cfg.DataDir, "queue.db"))
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer q.Close()
	metrics.RegisterComponent("queue", true, "ok")

	if reset, _ := cmd.Flags().GetBool("reset-queue"); reset {
		if err := q.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset queue: %w", err)
		}
		log.Info("Queue reset")
	}

	secrets, err := security.NewSecretsManagerFromPassword(cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	tekton := runner.NewTekton(runner.TektonConfig{
		TknPath:     cfg.Runner.Tkn,
		KubectlPath: cfg.Runner.Kubectl,
		QPS:         cfg.Runner.QPS,
		Burst:       cfg.Runner.Burst,
	})
	probeRunner(ctx, tekton, cfg.Namespace)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	executor := rollout.NewExecutor(tekton, rollout.NewVault(store, secrets, q), cfg.Namespace)

	sched := scheduler.NewScheduler(store, q, executor, broker, cfg.Scheduler.PollTimeout)
	sched.Start()
	defer sched.Stop()

	rec := reconciler.NewReconciler(store, tekton, q, broker, cfg.ReconcilerOptions())
	rec.Start()
	defer rec.Stop()

	collector := metrics.NewCollector(store, q, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	logger := log.WithComponent("serve")
	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("namespace", cfg.Namespace).
		Str("listen", cfg.Listen).
		Msg("Train engine started")

	srv := api.NewServer(api.Config{Listen: cfg.Listen, Namespace: cfg.Namespace}, store, q, tekton, secrets, broker)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info().Msg("Shutting down")
	return nil
}

// probeRunner lists the pipelines in the namespace once, so a missing tkn or
// an unreachable cluster shows up at startup rather than on first dispatch.
func probeRunner(ctx context.Context, r runner.Runner, namespace string) {
	logger := log.WithComponent("runner")
	names, err := r.List(ctx, namespace)
	if err != nil {
		logger.Warn().Err(err).Str("namespace", namespace).Msg("Pipeline runner is not reachable")
		metrics.RegisterComponent("runner", false, err.Error())
		return
	}
	metrics.RegisterComponent("runner", true, "ok")
	logger.Info().Str("namespace", namespace).Int("pipelines", len(names)).Msg("Pipeline runner reachable")
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		e := logger.Debug().
			Str("type", string(ev.Type)).
			Str("art_id", ev.ArtifactID)
		for k, v := range ev.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(ev.Message)
	}
}
