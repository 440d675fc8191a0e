package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// 默认超参数
const (
	DefaultTrees = 300
	DefaultSeed  = 42
)

// RandomForest bagging 随机森林。每棵树在 bootstrap 样本上生长，
// 每次分裂随机考察 √特征数 个特征，预测时平均各树的叶子概率
type RandomForest struct {
	NTrees      int             `json:"n_trees"`
	MaxDepth    int             `json:"max_depth,omitempty"`
	MaxFeatures int             `json:"max_features"`
	Seed        uint64          `json:"seed"`
	NFeatures   int             `json:"n_features"`
	Trees       []*DecisionTree `json:"trees"`

	// Workers 并行训练的 goroutine 数，0 表示 GOMAXPROCS
	Workers int `json:"-"`
}

// NewRandomForest 创建未训练的森林
func NewRandomForest(nTrees int, seed uint64) *RandomForest {
	if nTrees <= 0 {
		nTrees = DefaultTrees
	}
	return &RandomForest{NTrees: nTrees, Seed: seed}
}

// Fit 训练。labels 只能是 0/1
func (f *RandomForest) Fit(ctx context.Context, features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return errSizeMismatch
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return fmt.Errorf("label %d at row %d is not binary", l, i)
		}
	}

	f.NFeatures = len(features[0])
	if f.NTrees <= 0 {
		f.NTrees = DefaultTrees
	}
	if f.MaxFeatures <= 0 {
		f.MaxFeatures = max(1, int(math.Sqrt(float64(f.NFeatures))))
	}
	params := TreeParams{MaxDepth: f.MaxDepth, MinSamplesSplit: 2, MaxFeatures: f.MaxFeatures}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*DecisionTree, f.NTrees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// 每棵树独立的随机流，结果与调度顺序无关
			rng := rand.New(rand.NewPCG(f.Seed, uint64(i)))
			samples := make([]int, len(labels))
			for j := range samples {
				samples[j] = rng.IntN(len(labels))
			}
			tree := &DecisionTree{}
			if err := tree.Train(features, labels, samples, params, rng); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	return nil
}

// PredictProba 正类概率（各树平均）
func (f *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errNotTrained
	}
	if len(features) != f.NFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", f.NFeatures, len(features))
	}
	sum := 0.0
	for _, tree := range f.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(f.Trees)), nil
}

// Predict 返回标签和正类概率
func (f *RandomForest) Predict(features []float64) (int, float64, error) {
	p, err := f.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	return LabelFor(p), p, nil
}

// LabelFor 概率阈值 0.5
func LabelFor(proba float64) int {
	if proba >= 0.5 {
		return 1
	}
	return 0
}

func (f *RandomForest) validate() error {
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, t := range f.Trees {
		if t == nil || len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", i)
		}
	}
	return nil
}
