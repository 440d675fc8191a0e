package ml

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// DecisionTree 二分类 CART 树，叶子保存正类比例
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode 节点按前序存放，子节点用下标引用
type TreeNode struct {
	FeatureIdx int     `json:"f"`
	Threshold  float64 `json:"t"`
	LeftChild  int     `json:"l"`
	RightChild int     `json:"r"`
	Proba      float64 `json:"p"`
	IsLeaf     bool    `json:"leaf,omitempty"`
}

// TreeParams 生长参数
type TreeParams struct {
	MaxDepth        int // 0 表示不限
	MinSamplesSplit int
	MaxFeatures     int // 每次分裂随机考察的特征数，0 表示全部
}

var (
	errEmptyTrainingSet = errors.New("features or labels empty")
	errSizeMismatch     = errors.New("features and labels size mismatch")
	errNotTrained       = errors.New("model not trained")
)

// Train 在 samples 指定的行上生长（允许重复下标，即 bootstrap 样本）
func (dt *DecisionTree) Train(features [][]float64, labels []int, samples []int, params TreeParams, rng *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 || len(samples) == 0 {
		return errEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return errSizeMismatch
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	nFeatures := len(features[0])
	if params.MaxFeatures <= 0 || params.MaxFeatures > nFeatures {
		params.MaxFeatures = nFeatures
	}

	b := &treeBuilder{
		features: features,
		labels:   labels,
		params:   params,
		rng:      rng,
		perm:     make([]int, nFeatures),
	}
	for i := range b.perm {
		b.perm[i] = i
	}
	b.build(append([]int(nil), samples...), 0)
	dt.Nodes = b.nodes
	return nil
}

// PredictProba 正类概率
func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errNotTrained
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Proba, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// Depth 树深度（仅根节点时为 0）
func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

type treeBuilder struct {
	features [][]float64
	labels   []int
	params   TreeParams
	rng      *rand.Rand
	perm     []int
	nodes    []TreeNode
}

func (b *treeBuilder) build(samples []int, depth int) int {
	positives := 0
	for _, s := range samples {
		positives += b.labels[s]
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Proba:      float64(positives) / float64(len(samples)),
		IsLeaf:     true,
	})

	if positives == 0 || positives == len(samples) ||
		len(samples) < b.params.MinSamplesSplit ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) {
		return idx
	}

	feature, threshold, ok := b.findBestSplit(samples, positives)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.features[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[idx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftIdx,
		RightChild: rightIdx,
		Proba:      b.nodes[idx].Proba,
	}
	return idx
}

// findBestSplit 随机排列特征，考察前 MaxFeatures 个非常量特征，常量特征不计数
func (b *treeBuilder) findBestSplit(samples []int, positives int) (int, float64, bool) {
	b.rng.Shuffle(len(b.perm), func(i, j int) { b.perm[i], b.perm[j] = b.perm[j], b.perm[i] })

	n := len(samples)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.Inf(1)

	sorted := make([]int, n)
	visited := 0
	for _, feature := range b.perm {
		if visited >= b.params.MaxFeatures {
			break
		}
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][feature] < b.features[sorted[j]][feature]
		})
		if b.features[sorted[0]][feature] == b.features[sorted[n-1]][feature] {
			continue
		}
		visited++

		leftPos := 0
		for i := 0; i < n-1; i++ {
			leftPos += b.labels[sorted[i]]
			lo := b.features[sorted[i]][feature]
			hi := b.features[sorted[i+1]][feature]
			if lo == hi {
				continue
			}
			nl, nr := i+1, n-i-1
			impurity := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(positives-leftPos, nr)) / float64(n)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func gini(positives, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(positives) / float64(total)
	return 1 - p*p - (1-p)*(1-p)
}
