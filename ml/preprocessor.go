package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"superstore/pipeline"
)

// Encoder 特征编码：分类列 one-hot（未见过的类别编码为全 0），
// 数值列原样追加在后，缺失值用训练集中位数填充
type Encoder struct {
	Categorical []string            `json:"categorical"`
	Categories  map[string][]string `json:"categories"`
	Numeric     []string            `json:"numeric"`
	Medians     map[string]float64  `json:"medians"`

	index map[string]map[string]int
}

// NewEncoder 指定列，Fit 之前不可用
func NewEncoder(numeric, categorical []string) *Encoder {
	return &Encoder{
		Categorical: categorical,
		Numeric:     numeric,
	}
}

// Fit 统计类别与中位数
func (e *Encoder) Fit(rows []pipeline.Order) error {
	if len(rows) == 0 {
		return errors.New("rows is empty")
	}
	if len(e.Categorical)+len(e.Numeric) == 0 {
		return errors.New("no feature columns")
	}

	e.Categories = make(map[string][]string, len(e.Categorical))
	for _, col := range e.Categorical {
		seen := make(map[string]struct{})
		for i := range rows {
			if v, _ := rows[i].Text(col); v != "" {
				seen[v] = struct{}{}
			}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[col] = cats
	}

	e.Medians = make(map[string]float64, len(e.Numeric))
	for _, col := range e.Numeric {
		values := make([]float64, 0, len(rows))
		for i := range rows {
			if v, ok := rows[i].Number(col); ok {
				values = append(values, v)
			}
		}
		e.Medians[col] = median(values)
	}

	e.buildIndex()
	return nil
}

// Width 编码后的向量长度
func (e *Encoder) Width() int {
	n := len(e.Numeric)
	for _, col := range e.Categorical {
		n += len(e.Categories[col])
	}
	return n
}

// FeatureNames 编码后各维的名字，如 "Region=West"
func (e *Encoder) FeatureNames() []string {
	names := make([]string, 0, e.Width())
	for _, col := range e.Categorical {
		for _, v := range e.Categories[col] {
			names = append(names, col+"="+v)
		}
	}
	return append(names, e.Numeric...)
}

// Transform 编码一行
func (e *Encoder) Transform(row *pipeline.Order) ([]float64, error) {
	if e.index == nil || e.Medians == nil {
		return nil, errors.New("encoder not fitted")
	}

	vector := make([]float64, e.Width())
	offset := 0
	for _, col := range e.Categorical {
		v, _ := row.Text(col)
		if pos, ok := e.index[col][v]; ok {
			vector[offset+pos] = 1
		}
		offset += len(e.Categories[col])
	}
	for i, col := range e.Numeric {
		v, ok := row.Number(col)
		if !ok {
			median, found := e.Medians[col]
			if !found {
				return nil, fmt.Errorf("missing median for %s", col)
			}
			v = median
		}
		vector[offset+i] = v
	}
	return vector, nil
}

// TransformAll 编码多行
func (e *Encoder) TransformAll(rows []pipeline.Order) ([][]float64, error) {
	vectors := make([][]float64, len(rows))
	for i := range rows {
		v, err := e.Transform(&rows[i])
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// UnmarshalJSON 解码后重建类别下标
func (e *Encoder) UnmarshalJSON(data []byte) error {
	type plain Encoder
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Encoder(p)
	e.buildIndex()
	return nil
}

func (e *Encoder) buildIndex() {
	e.index = make(map[string]map[string]int, len(e.Categorical))
	for _, col := range e.Categorical {
		m := make(map[string]int, len(e.Categories[col]))
		for i, v := range e.Categories[col] {
			m[v] = i
		}
		e.index[col] = m
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
