package ml

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superstore/pipeline"
)

var (
	predictorOnce sync.Once
	predictorPath string
	predictorErr  error
)

// trainedPredictor 训练一次小模型，供本文件的测试共用
func trainedPredictor(t *testing.T) *Predictor {
	t.Helper()
	predictorOnce.Do(func() {
		dir, err := os.MkdirTemp("", "superstore-model-*")
		if err != nil {
			predictorErr = err
			return
		}
		predictorPath = filepath.Join(dir, "model.json")
		_, predictorErr = NewTrainer(TrainingConfig{ModelPath: predictorPath, NTrees: 20, Seed: 42}, nil).
			Train(context.Background(), writeOrders(t, 200, false))
	})
	require.NoError(t, predictorErr)

	p, err := LoadModel(predictorPath)
	require.NoError(t, err)
	return p
}

func TestPredictOne(t *testing.T) {
	p := trainedPredictor(t)

	good, err := p.PredictOne(ProfitInput{
		Sales: 200, Quantity: 2, Discount: 0, DaysToShip: 2,
		ShipMode: "Standard Class", Segment: "Consumer", Category: "Technology",
		SubCategory: "Phones", Region: "West",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, good.Label)
	assert.True(t, good.Profitable)
	assert.GreaterOrEqual(t, good.Probability, 0.5)

	bad, err := p.PredictOne(ProfitInput{
		Sales: 200, Quantity: 2, Discount: 0.8, DaysToShip: 2,
		ShipMode: "Standard Class", Segment: "Consumer", Category: "Technology",
		SubCategory: "Phones", Region: "West",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, bad.Label)
	assert.Less(t, bad.Probability, 0.5)
}

func TestPredictOneUnknownCategory(t *testing.T) {
	p := trainedPredictor(t)
	pred, err := p.PredictOne(ProfitInput{
		Sales: 50, Quantity: 1, Discount: 0.1, DaysToShip: 0,
		ShipMode: "Teleport", Segment: "Martian", Category: "Toys",
		SubCategory: "Robots", Region: "Moon",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.Probability, 0.0)
	assert.LessOrEqual(t, pred.Probability, 1.0)
}

func TestPredictOneValidation(t *testing.T) {
	p := trainedPredictor(t)
	_, err := p.PredictOne(ProfitInput{Sales: -1, Quantity: 0, Discount: 0.95, DaysToShip: -2})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Invalid, 4)
	assert.Contains(t, ve.Error(), "discount must be less than or equal to 0.9")
	assert.Contains(t, ve.Error(), "days_to_ship must be greater than or equal to -1")
}

func TestPredictBatch(t *testing.T) {
	p := trainedPredictor(t)
	table, err := pipeline.ReadCSV(strings.NewReader(BatchTemplate()), pipeline.BatchFormat())
	require.NoError(t, err)

	result, err := p.PredictBatch(table)
	require.NoError(t, err)
	require.Len(t, result.Labels, 1)
	assert.Equal(t, 1, result.Labels[0])
	assert.Equal(t, 1, result.Profitable())

	var buf bytes.Buffer
	require.NoError(t, pipeline.WriteCSV(&buf, result.Table, result.Columns()...))
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.True(t, strings.HasSuffix(header, ",Pred_Profitable,Proba_Profit"))
}

func TestPredictBatchDerivesDaysToShip(t *testing.T) {
	p := trainedPredictor(t)
	raw := "Sales;Quantity;Discount;Ship Mode;Segment;Category;Sub-Category;Region;Order Date;Ship Date\n" +
		"120,00;2;0,0;Standard Class;Consumer;Furniture;Chairs;East;10/01/2023;08/01/2023\n" +
		"80,00;1;0,7;Standard Class;Consumer;Furniture;Chairs;East;10/01/2023;\n"
	table, err := pipeline.ReadCSV(strings.NewReader(raw), pipeline.BatchFormat())
	require.NoError(t, err)

	result, err := p.PredictBatch(table)
	require.NoError(t, err)
	assert.True(t, result.Table.Has(pipeline.ColDaysToShip))
	// 批量预测保留原始天数差，不做 -1 下限处理
	assert.Equal(t, int64(-2), result.Table.Rows[0].DaysToShip.V)
	assert.False(t, result.Table.Rows[1].DaysToShip.Valid)
	assert.Len(t, result.Probabilities, 2)
	assert.False(t, table.Has(pipeline.ColDaysToShip))
}

func TestPredictBatchMissingColumns(t *testing.T) {
	p := trainedPredictor(t)
	raw := "Sales;Quantity;Discount;Ship Mode;Segment;Category;Sub-Category;Days_to_Ship\n" +
		"100,00;1;0,10;Standard Class;Consumer;Technology;Phones;2\n"
	table, err := pipeline.ReadCSV(strings.NewReader(raw), pipeline.BatchFormat())
	require.NoError(t, err)

	result, err := p.PredictBatch(table)
	assert.Nil(t, result)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{pipeline.ColRegion}, ve.Missing)
	assert.Contains(t, err.Error(), "Region")
}

func TestPrepareBatchWithoutModel(t *testing.T) {
	raw := "Sales;Quantity;Discount;Ship Mode;Segment;Category;Sub-Category;Order Date;Ship Date\n" +
		"100,00;1;0,10;Standard Class;Consumer;Technology;Phones;01/02/2023;03/02/2023\n"
	table, err := pipeline.ReadCSV(strings.NewReader(raw), pipeline.BatchFormat())
	require.NoError(t, err)

	_, err = PrepareBatch(table)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{pipeline.ColRegion}, ve.Missing)

	table.AddColumn(pipeline.ColRegion)
	table.Rows[0].Region = "West"
	work, err := PrepareBatch(table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), work.Rows[0].DaysToShip.V)
	assert.False(t, table.Has(pipeline.ColDaysToShip))
}

func TestLoadModelMissing(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestBatchTemplate(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(BatchTemplate()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sales;Quantity;Discount;Ship Mode;Segment;Category;Sub-Category;Region;Days_to_Ship", lines[0])
}
