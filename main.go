package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"superstore/config"
	"superstore/db"
	qhttp "superstore/http"
	"superstore/logging"
	"superstore/ml"
	"superstore/monitoring"
	"superstore/workspace"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "superstore",
		Short:         "Superstore sales dashboard and profitability service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "config file (YAML)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// defaultConfigPath 从 cmd/ 下运行时也能找到根目录的 config.yaml
func defaultConfigPath() string {
	path := "config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join("..", path)); err == nil {
			return filepath.Join("..", path)
		}
	}
	return path
}

func serve(ctx context.Context, configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics := monitoring.NewMetricsCollector()

	// 2. Workspace and model store
	ws, err := workspace.NewStore(workspace.Options{
		MaxSessions:    cfg.Data.MaxSessions,
		DefaultDataset: cfg.Data.DefaultDataset,
	}, logger, metrics)
	if err != nil {
		return err
	}

	hub := monitoring.NewDashboardHub(logger, metrics)
	go hub.Run(ctx)

	models := workspace.NewModelStore(cfg.Model.Path, logger)
	models.OnChange = func(path string) {
		if err := hub.Publish(monitoring.EventModelReloaded, map[string]any{"model_path": path}); err != nil {
			logger.Debug("publish model reload", zap.Error(err))
		}
	}
	if cfg.Model.Watch {
		go func() {
			if err := models.Watch(ctx); err != nil {
				logger.Warn("model watch stopped", zap.String("path", cfg.Model.Path), zap.Error(err))
			}
		}()
	}

	// 3. Training/prediction log
	var store *db.Store
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(cfg.Server, qhttp.Deps{
		Workspace:       ws,
		Models:          models,
		Trainer:         ml.NewTrainer(cfg.TrainerConfig(), logger),
		DB:              store,
		Hub:             hub,
		Metrics:         metrics,
		Logger:          logger,
		TrainingDataset: cfg.Training.Dataset,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if err := server.Stop(context.Background()); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("exiting")
	return nil
}
