package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superstore/ml"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "superstore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTrainingLog(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	report := &ml.TrainingReport{
		NTrain: 80, NTest: 20,
		FeatureCols: []string{"Sales", "Region"},
		Metrics:     ml.Metrics{Accuracy: 0.9, Precision: 0.8, Recall: 0.7, F1: 0.75},
		ModelPath:   "models/a.json",
		TrainedAt:   older,
		Duration:    1500 * time.Millisecond,
	}
	_, err := s.SaveTrainingLog(ctx, TrainingLogFromReport(report))
	require.NoError(t, err)
	_, err = s.SaveTrainingLog(ctx, TrainingLog{ModelPath: "models/b.json", NTrain: 10, NTest: 3, TrainedAt: older.Add(time.Hour)})
	require.NoError(t, err)

	logs, err := s.LoadTrainingLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "models/b.json", logs[0].ModelPath)
	assert.Nil(t, logs[0].FeatureCols)

	first := logs[1]
	assert.Equal(t, 80, first.NTrain)
	assert.Equal(t, 0.75, first.F1)
	assert.Equal(t, []string{"Sales", "Region"}, first.FeatureCols)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)
	assert.True(t, first.TrainedAt.Equal(older))

	latest, err := s.LoadTrainingLog(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestPredictions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePredictions(ctx, "s1", "batch", []int{1, 0, 1}, []float64{0.9, 0.2, 0.6}))
	require.NoError(t, s.SavePredictions(ctx, "s2", "single", []int{1}, []float64{0.7}))
	require.NoError(t, s.SavePredictions(ctx, "s2", "single", nil, nil))

	n, err := s.CountPredictions(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = s.CountPredictions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Error(t, s.SavePredictions(ctx, "s1", "batch", []int{1}, nil))
	assert.Error(t, s.SavePredictions(ctx, "s1", "", []int{1}, []float64{0.5}))
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.CountPredictions(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = Open("")
	assert.Error(t, err)
}
