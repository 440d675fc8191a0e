package ml

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superstore/pipeline"
)

func labelsOf(pos, neg int) []int {
	labels := make([]int, 0, pos+neg)
	for i := 0; i < pos; i++ {
		labels = append(labels, 1)
	}
	for i := 0; i < neg; i++ {
		labels = append(labels, 0)
	}
	return labels
}

func count(labels []int, idx []int, class int) int {
	n := 0
	for _, i := range idx {
		if labels[i] == class {
			n++
		}
	}
	return n
}

func TestStratifiedSplit(t *testing.T) {
	labels := labelsOf(80, 20)
	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)

	assert.Len(t, test, 20)
	assert.Len(t, train, 80)
	assert.Equal(t, 16, count(labels, test, 1))
	assert.Equal(t, 4, count(labels, test, 0))

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	assert.Equal(t, allRows(100), all)
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	labels := labelsOf(33, 17)
	train1, test1, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	train2, test2, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)

	_, test3, err := StratifiedSplit(labels, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, test1, test3)
}

func TestStratifiedSplitSingleClass(t *testing.T) {
	labels := labelsOf(10, 0)
	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)
}

func TestStratifiedSplitSingletonClassStaysInTrain(t *testing.T) {
	labels := labelsOf(9, 1)
	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Zero(t, count(labels, test, 0))
	assert.Equal(t, 1, count(labels, train, 0))
	assert.Len(t, test, 2)
}

func TestStratifiedSplitErrors(t *testing.T) {
	_, _, err := StratifiedSplit([]int{1}, 0.2, 42)
	assert.Error(t, err)
	_, _, err = StratifiedSplit(labelsOf(5, 5), 1.5, 42)
	assert.Error(t, err)
}

func TestLabelsDropsUndefinedTarget(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColProfitable)
	table.Rows = make([]pipeline.Order, 3)
	table.Rows[0].Profitable.V, table.Rows[0].Profitable.Valid = 1, true
	table.Rows[2].Profitable.V, table.Rows[2].Profitable.Valid = 0, true

	rows, labels, err := Labels(table)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, []int{1, 0}, labels)

	_, _, err = Labels(pipeline.NewTable(pipeline.ColSales))
	assert.Error(t, err)
}
