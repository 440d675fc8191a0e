package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"superstore/pipeline"
)

// 默认划分参数
const (
	DefaultTestRatio = 0.2
)

// Labels 提取目标列，丢弃目标缺失的行
func Labels(t *pipeline.Table) ([]pipeline.Order, []int, error) {
	if !t.Has(TargetColumn) {
		return nil, nil, fmt.Errorf("%w: target column %q not found", ErrInsufficientData, TargetColumn)
	}
	rows := make([]pipeline.Order, 0, t.Len())
	labels := make([]int, 0, t.Len())
	for i := range t.Rows {
		row := t.Rows[i]
		if !row.Profitable.Valid {
			continue
		}
		rows = append(rows, row)
		labels = append(labels, int(row.Profitable.V))
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no rows with a defined target", ErrInsufficientData)
	}
	return rows, labels, nil
}

// StratifiedSplit 按类别比例划分训练/测试下标。
// 测试集大小为 ceil(n*testRatio)，按各类占比分配，余数给小数部分最大的类；
// 只有一个样本的类全部进入训练集
func StratifiedSplit(labels []int, testRatio float64, seed uint64) (train, test []int, err error) {
	n := len(labels)
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows to split, got %d", ErrInsufficientData, n)
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio %v out of (0, 1)", testRatio)
	}

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		nTest = n - 1
	}

	type share struct {
		class int
		count int
		frac  float64
		limit int
	}
	shares := make([]share, len(classes))
	assigned := 0
	for i, c := range classes {
		size := len(byClass[c])
		exact := float64(nTest) * float64(size) / float64(n)
		s := share{class: c, count: int(math.Floor(exact)), frac: exact - math.Floor(exact), limit: size - 1}
		s.count = min(s.count, s.limit)
		shares[i] = s
		assigned += s.count
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].frac > shares[order[b]].frac })
	for assigned < nTest {
		progressed := false
		for _, i := range order {
			if assigned == nTest {
				break
			}
			if shares[i].count < shares[i].limit {
				shares[i].count++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	for _, s := range shares {
		idx := append([]int(nil), byClass[s.class]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:s.count]...)
		train = append(train, idx[s.count:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	sort.Ints(test)
	return train, test, nil
}

// BuildTrainingSet 按下标取行并编码
func BuildTrainingSet(enc *Encoder, rows []pipeline.Order, labels []int, idx []int) ([][]float64, []int, error) {
	features := make([][]float64, 0, len(idx))
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		v, err := enc.Transform(&rows[i])
		if err != nil {
			return nil, nil, err
		}
		features = append(features, v)
		out = append(out, labels[i])
	}
	return features, out, nil
}

func pick(rows []pipeline.Order, idx []int) []pipeline.Order {
	out := make([]pipeline.Order, len(idx))
	for j, i := range idx {
		out[j] = rows[i]
	}
	return out
}
