package ml

import (
	"context"
	"errors"
)

// ErrModelUnavailable 模型文件不存在或尚未训练
var ErrModelUnavailable = errors.New("model unavailable")

// ErrInsufficientData 数据不足以训练：缺少目标列、没有有效行或行数太少
var ErrInsufficientData = errors.New("insufficient training data")

// Classifier 二分类器
type Classifier interface {
	Fit(ctx context.Context, features [][]float64, labels []int) error
	PredictProba(features []float64) (float64, error)
}

// ModelProvider 按需提供已加载的预测器
type ModelProvider interface {
	Predictor(ctx context.Context) (*Predictor, error)
}

var _ Classifier = (*RandomForest)(nil)
