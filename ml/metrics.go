package ml

import (
	"fmt"
	"sort"
	"strings"
)

// Metrics 测试集指标，正类为 1。分母为 0 时指标记为 0
type Metrics struct {
	Accuracy  float64              `json:"accuracy"`
	Precision float64              `json:"precision"`
	Recall    float64              `json:"recall"`
	F1        float64              `json:"f1"`
	Report    ClassificationReport `json:"report"`
}

// ClassMetrics 单个类别的指标
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport 分类报告
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Support     int            `json:"support"`
}

// Evaluate 计算二分类指标与报告
func Evaluate(yTrue, yPred []int) (Metrics, error) {
	if len(yTrue) != len(yPred) {
		return Metrics{}, errSizeMismatch
	}
	tp, fp, fn := confusion(yTrue, yPred, 1)
	precision, recall, f1 := prf(tp, fp, fn)
	report := NewClassificationReport(yTrue, yPred)
	return Metrics{
		Accuracy:  report.Accuracy,
		Precision: precision,
		Recall:    recall,
		F1:        f1,
		Report:    report,
	}, nil
}

// NewClassificationReport 报告覆盖真实值与预测值中出现过的所有类别
func NewClassificationReport(yTrue, yPred []int) ClassificationReport {
	seen := make(map[int]bool)
	for _, y := range yTrue {
		seen[y] = true
	}
	for _, y := range yPred {
		seen[y] = true
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	report := ClassificationReport{
		Support:     len(yTrue),
		MacroAvg:    ClassMetrics{Label: "macro avg"},
		WeightedAvg: ClassMetrics{Label: "weighted avg"},
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	if len(yTrue) > 0 {
		report.Accuracy = float64(correct) / float64(len(yTrue))
	}

	for _, l := range labels {
		tp, fp, fn := confusion(yTrue, yPred, l)
		p, r, f := prf(tp, fp, fn)
		cm := ClassMetrics{Label: fmt.Sprint(l), Precision: p, Recall: r, F1: f, Support: tp + fn}
		report.Classes = append(report.Classes, cm)

		report.MacroAvg.Precision += p
		report.MacroAvg.Recall += r
		report.MacroAvg.F1 += f
		w := float64(cm.Support)
		report.WeightedAvg.Precision += p * w
		report.WeightedAvg.Recall += r * w
		report.WeightedAvg.F1 += f * w
	}
	if k := float64(len(labels)); k > 0 {
		report.MacroAvg.Precision /= k
		report.MacroAvg.Recall /= k
		report.MacroAvg.F1 /= k
	}
	if n := float64(report.Support); n > 0 {
		report.WeightedAvg.Precision /= n
		report.WeightedAvg.Recall /= n
		report.WeightedAvg.F1 /= n
	}
	report.MacroAvg.Support = report.Support
	report.WeightedAvg.Support = report.Support
	return report
}

// String 文本格式，列对齐
func (r ClassificationReport) String() string {
	var b strings.Builder
	row := func(label string, p, rc, f float64, support int) {
		fmt.Fprintf(&b, "%12s %9.2f %9.2f %9.2f %9d\n", label, p, rc, f, support)
	}

	fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		row(c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.Support)
	row(r.MacroAvg.Label, r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	row(r.WeightedAvg.Label, r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}

func confusion(yTrue, yPred []int, positive int) (tp, fp, fn int) {
	for i := range yTrue {
		switch {
		case yTrue[i] == positive && yPred[i] == positive:
			tp++
		case yTrue[i] != positive && yPred[i] == positive:
			fp++
		case yTrue[i] == positive && yPred[i] != positive:
			fn++
		}
	}
	return tp, fp, fn
}

func prf(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
