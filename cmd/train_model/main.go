package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"superstore/config"
	"superstore/db"
	"superstore/logging"
	"superstore/ml"
)

type options struct {
	configPath string
	csvPath    string
	modelPath  string
	dbPath     string
	nTrees     int
	maxDepth   int
	testRatio  float64
	seed       uint64
	workers    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "train_model",
		Short:         "Train the profitability classifier from a Superstore CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file (YAML)")
	f.StringVar(&opts.csvPath, "csv", "", "training CSV (; delimited, comma decimals)")
	f.StringVar(&opts.modelPath, "model", "", "model artifact output path")
	f.StringVar(&opts.dbPath, "db", "", "SQLite training log")
	f.IntVar(&opts.nTrees, "trees", 0, "number of trees")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "max tree depth, 0 = unlimited")
	f.Float64Var(&opts.testRatio, "test-ratio", 0, "held-out fraction")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed")
	f.IntVar(&opts.workers, "workers", 0, "parallel tree builders, 0 = GOMAXPROCS")
	return cmd
}

// run 命令行参数覆盖配置文件
func run(ctx context.Context, cmd *cobra.Command, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("csv") {
		cfg.Training.Dataset = opts.csvPath
	}
	if f.Changed("model") {
		cfg.Model.Path = opts.modelPath
	}
	if f.Changed("db") {
		cfg.Database.Path = opts.dbPath
	}
	if f.Changed("trees") {
		cfg.Training.NTrees = opts.nTrees
	}
	if f.Changed("max-depth") {
		cfg.Training.MaxDepth = opts.maxDepth
	}
	if f.Changed("test-ratio") {
		cfg.Training.TestRatio = opts.testRatio
	}
	if f.Changed("seed") {
		cfg.Training.Seed = opts.seed
	}
	if f.Changed("workers") {
		cfg.Training.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Training.Dataset == "" {
		return fmt.Errorf("no training dataset: pass --csv or set training.dataset")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	report, err := ml.NewTrainer(cfg.TrainerConfig(), logger).Train(ctx, cfg.Training.Dataset)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	fmt.Fprintf(out, "train rows: %d, test rows: %d\n", report.NTrain, report.NTest)
	fmt.Fprintf(out, "features: %v\n", report.FeatureCols)
	fmt.Fprintf(out, "accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
		report.Metrics.Accuracy, report.Metrics.Precision, report.Metrics.Recall, report.Metrics.F1)
	fmt.Fprintln(out, report.Metrics.Report.String())
	fmt.Fprintf(out, "model saved to %s\n", report.ModelPath)

	if cfg.Database.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.SaveTrainingLog(ctx, db.TrainingLogFromReport(report))
	if err != nil {
		// 模型已保存，日志失败不算训练失败
		logger.Warn("save training log failed", zap.Error(err))
		return nil
	}
	logger.Info("training logged", zap.Int64("id", id), zap.String("db", cfg.Database.Path))
	return nil
}
