package ml

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"superstore/pipeline"
)

// TrainingConfig 训练参数
type TrainingConfig struct {
	ModelPath string
	NTrees    int
	MaxDepth  int
	TestRatio float64
	Seed      uint64
	Workers   int
}

// DefaultTrainingConfig 300 棵树，20% 测试集，种子 42
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		ModelPath: DefaultModelPath,
		NTrees:    DefaultTrees,
		TestRatio: DefaultTestRatio,
		Seed:      DefaultSeed,
	}
}

// TrainingReport 训练结果
type TrainingReport struct {
	NTrain      int           `json:"n_train"`
	NTest       int           `json:"n_test"`
	FeatureCols []string      `json:"feature_cols"`
	Metrics     Metrics       `json:"metrics"`
	ModelPath   string        `json:"model_path"`
	TrainedAt   time.Time     `json:"trained_at"`
	Duration    time.Duration `json:"duration"`
}

// Trainer 训练驱动：读取、派生、划分、拟合、评估、保存
type Trainer struct {
	config  TrainingConfig
	deriver *pipeline.FeatureDeriver
	logger  *zap.Logger
}

// NewTrainer 创建训练器，零值参数使用默认值
func NewTrainer(config TrainingConfig, logger *zap.Logger) *Trainer {
	def := DefaultTrainingConfig()
	if config.ModelPath == "" {
		config.ModelPath = def.ModelPath
	}
	if config.NTrees <= 0 {
		config.NTrees = def.NTrees
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = def.TestRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		config:  config,
		deriver: pipeline.NewFeatureDeriver(logger),
		logger:  logger,
	}
}

// Config 生效的参数
func (tr *Trainer) Config() TrainingConfig {
	return tr.config
}

// Train 从 CSV 文件训练
func (tr *Trainer) Train(ctx context.Context, csvPath string) (*TrainingReport, error) {
	table, err := pipeline.ReadFile(csvPath, pipeline.SuperstoreFormat())
	if err != nil {
		return nil, err
	}
	return tr.TrainTable(ctx, table)
}

// TrainTable 在已读取的表上训练。指标只做记录，无论好坏都会保存模型
func (tr *Trainer) TrainTable(ctx context.Context, table *pipeline.Table) (*TrainingReport, error) {
	start := time.Now()
	derived := tr.deriver.Derive(table)

	rows, labels, err := Labels(derived)
	if err != nil {
		return nil, err
	}
	numeric, categorical := FeatureColumns(derived.Columns)
	if len(numeric)+len(categorical) == 0 {
		return nil, fmt.Errorf("%w: no feature columns present", ErrInsufficientData)
	}
	featureCols := append(append([]string(nil), numeric...), categorical...)

	trainIdx, testIdx, err := StratifiedSplit(labels, tr.config.TestRatio, tr.config.Seed)
	if err != nil {
		return nil, err
	}

	enc := NewEncoder(numeric, categorical)
	if err := enc.Fit(pick(rows, trainIdx)); err != nil {
		return nil, fmt.Errorf("fit encoder: %w", err)
	}
	trainX, trainY, err := BuildTrainingSet(enc, rows, labels, trainIdx)
	if err != nil {
		return nil, err
	}
	testX, testY, err := BuildTrainingSet(enc, rows, labels, testIdx)
	if err != nil {
		return nil, err
	}

	tr.logger.Info("training profit classifier",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Int("encoded_features", enc.Width()),
		zap.Int("trees", tr.config.NTrees))

	forest := NewRandomForest(tr.config.NTrees, tr.config.Seed)
	forest.MaxDepth = tr.config.MaxDepth
	forest.Workers = tr.config.Workers
	if err := forest.Fit(ctx, trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	predictions := make([]int, len(testX))
	for i, x := range testX {
		label, _, err := forest.Predict(x)
		if err != nil {
			return nil, err
		}
		predictions[i] = label
	}
	metrics, err := Evaluate(testY, predictions)
	if err != nil {
		return nil, err
	}

	trainedAt := time.Now().UTC()
	artifact := &Artifact{
		Version:     ArtifactVersion,
		TrainedAt:   trainedAt,
		FeatureCols: featureCols,
		Encoder:     enc,
		Forest:      forest,
		Metrics:     &metrics,
	}
	if err := SaveArtifact(tr.config.ModelPath, artifact); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	report := &TrainingReport{
		NTrain:      len(trainX),
		NTest:       len(testX),
		FeatureCols: featureCols,
		Metrics:     metrics,
		ModelPath:   tr.config.ModelPath,
		TrainedAt:   trainedAt,
		Duration:    time.Since(start),
	}
	tr.logger.Info("model saved",
		zap.String("path", report.ModelPath),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("f1", metrics.F1),
		zap.Duration("duration", report.Duration))
	return report, nil
}
