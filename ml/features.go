package ml

import (
	"slices"

	"superstore/pipeline"
)

// NumericFeatures 数值特征，按此顺序
var NumericFeatures = []string{
	pipeline.ColSales,
	pipeline.ColQuantity,
	pipeline.ColDiscount,
	pipeline.ColDaysToShip,
}

// CategoricalFeatures 分类特征，按此顺序
var CategoricalFeatures = []string{
	pipeline.ColShipMode,
	pipeline.ColSegment,
	pipeline.ColCategory,
	pipeline.ColSubCategory,
	pipeline.ColRegion,
}

// TargetColumn 目标列
const TargetColumn = pipeline.ColProfitable

// RequiredColumns 批量预测必须具备的列
func RequiredColumns() []string {
	return []string{
		pipeline.ColSales, pipeline.ColQuantity, pipeline.ColDiscount,
		pipeline.ColShipMode, pipeline.ColSegment, pipeline.ColCategory,
		pipeline.ColSubCategory, pipeline.ColRegion, pipeline.ColDaysToShip,
	}
}

// FeatureColumns 返回存在的数值列和分类列
func FeatureColumns(columns []string) (numeric, categorical []string) {
	for _, c := range NumericFeatures {
		if slices.Contains(columns, c) {
			numeric = append(numeric, c)
		}
	}
	for _, c := range CategoricalFeatures {
		if slices.Contains(columns, c) {
			categorical = append(categorical, c)
		}
	}
	return numeric, categorical
}
