package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"superstore/pipeline"
)

func TestFeatureColumns(t *testing.T) {
	numeric, categorical := FeatureColumns([]string{
		pipeline.ColRegion, pipeline.ColSales, pipeline.ColOrderID,
		pipeline.ColDiscount, pipeline.ColShipMode, pipeline.ColProfit,
	})
	assert.Equal(t, []string{pipeline.ColSales, pipeline.ColDiscount}, numeric)
	assert.Equal(t, []string{pipeline.ColShipMode, pipeline.ColRegion}, categorical)

	numeric, categorical = FeatureColumns(nil)
	assert.Empty(t, numeric)
	assert.Empty(t, categorical)
}

func TestRequiredColumns(t *testing.T) {
	required := RequiredColumns()
	assert.Len(t, required, 9)
	assert.ElementsMatch(t, append(append([]string(nil), NumericFeatures...), CategoricalFeatures...), required)
}
