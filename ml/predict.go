package ml

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"superstore/pipeline"
)

// 批量预测输出列
const (
	ColPredLabel = "Pred_Profitable"
	ColPredProba = "Proba_Profit"
)

// ValidationError 输入不满足要求，不做预测
type ValidationError struct {
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, strings.Join(e.Invalid, "; "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ProfitInput 单条预测输入
type ProfitInput struct {
	Sales       float64 `json:"sales" validate:"gte=0"`
	Quantity    int64   `json:"quantity" validate:"gte=1"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=0.9"`
	DaysToShip  int64   `json:"days_to_ship" validate:"gte=-1"`
	ShipMode    string  `json:"ship_mode"`
	Segment     string  `json:"segment"`
	Category    string  `json:"category"`
	SubCategory string  `json:"sub_category"`
	Region      string  `json:"region"`
}

// Order 转成订单行
func (in ProfitInput) Order() pipeline.Order {
	o := pipeline.Order{
		ShipMode:    strings.TrimSpace(in.ShipMode),
		Segment:     strings.TrimSpace(in.Segment),
		Category:    strings.TrimSpace(in.Category),
		SubCategory: strings.TrimSpace(in.SubCategory),
		Region:      strings.TrimSpace(in.Region),
	}
	o.Sales.V, o.Sales.Valid = in.Sales, true
	o.Quantity.V, o.Quantity.Valid = in.Quantity, true
	o.Discount.V, o.Discount.Valid = in.Discount, true
	o.DaysToShip.V, o.DaysToShip.Valid = in.DaysToShip, true
	return o
}

// Prediction 单条预测结果
type Prediction struct {
	Label       int     `json:"label"`
	Profitable  bool    `json:"profitable"`
	Probability float64 `json:"probability"`
}

// BatchResult 批量预测结果，Table 为补全 Days_to_Ship 后的输入
type BatchResult struct {
	Table         *pipeline.Table
	Labels        []int
	Probabilities []float64
}

// Columns 预测列，用于导出
func (r *BatchResult) Columns() []pipeline.ExtraColumn {
	return []pipeline.ExtraColumn{
		{Name: ColPredLabel, Value: func(i int) any { return int64(r.Labels[i]) }},
		{Name: ColPredProba, Value: func(i int) any { return r.Probabilities[i] }},
	}
}

// Profitable 预测为盈利的行数
func (r *BatchResult) Profitable() int {
	n := 0
	for _, l := range r.Labels {
		n += l
	}
	return n
}

// Predictor 加载后的模型，只读，可并发使用
type Predictor struct {
	artifact *Artifact
	validate *validator.Validate
}

// NewPredictor 包装模型文件
func NewPredictor(a *Artifact) *Predictor {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Predictor{artifact: a, validate: v}
}

// Artifact 底层模型
func (p *Predictor) Artifact() *Artifact {
	return p.artifact
}

// PredictOne 单条预测。输入越界时返回 *ValidationError
func (p *Predictor) PredictOne(in ProfitInput) (Prediction, error) {
	if err := p.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			ve := &ValidationError{}
			for _, fe := range fieldErrs {
				ve.Invalid = append(ve.Invalid, describe(fe))
			}
			return Prediction{}, ve
		}
		return Prediction{}, err
	}

	row := in.Order()
	proba, err := p.predictRow(&row)
	if err != nil {
		return Prediction{}, err
	}
	label := LabelFor(proba)
	return Prediction{Label: label, Profitable: label == 1, Probability: proba}, nil
}

// PrepareBatch 补全 Days_to_Ship 并检查必需列，不需要模型。
// 缺少 Days_to_Ship 但有两个日期列时先计算天数；缺少必需列时返回 *ValidationError
func PrepareBatch(t *pipeline.Table) (*pipeline.Table, error) {
	work := t.Clone()
	if !work.Has(pipeline.ColDaysToShip) && work.HasAll(pipeline.ColOrderDate, pipeline.ColShipDate) {
		for i := range work.Rows {
			row := &work.Rows[i]
			if row.OrderDate.Valid && row.ShipDate.Valid {
				row.DaysToShip.V = pipeline.DaysBetween(row.OrderDate.V, row.ShipDate.V)
				row.DaysToShip.Valid = true
			}
		}
		work.AddColumn(pipeline.ColDaysToShip)
	}

	if missing := work.Missing(RequiredColumns()...); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	return work, nil
}

// PredictBatch 对每一行预测，输入先经过 PrepareBatch
func (p *Predictor) PredictBatch(t *pipeline.Table) (*BatchResult, error) {
	work, err := PrepareBatch(t)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Table:         work,
		Labels:        make([]int, work.Len()),
		Probabilities: make([]float64, work.Len()),
	}
	for i := range work.Rows {
		proba, err := p.predictRow(&work.Rows[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		result.Probabilities[i] = proba
		result.Labels[i] = LabelFor(proba)
	}
	return result, nil
}

func (p *Predictor) predictRow(row *pipeline.Order) (float64, error) {
	x, err := p.artifact.Encoder.Transform(row)
	if err != nil {
		return 0, err
	}
	return p.artifact.Forest.PredictProba(x)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// BatchTemplate 批量预测模板：表头加一行示例，分号分隔、逗号小数
func BatchTemplate() string {
	return strings.Join(RequiredColumns(), ";") + "\n" +
		"100,00;1;0,10;Standard Class;Consumer;Technology;Phones;West;2\n"
}
