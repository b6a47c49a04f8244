package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func makeTable(dates []time.Time, names []string, values [][]int) *trends.InterestTable {
	tbl := &trends.InterestTable{Dates: dates}
	for i, name := range names {
		scores := make([]trends.Score, len(dates))
		for j, v := range values[i] {
			scores[j] = trends.Score{Value: v, Valid: true}
		}
		tbl.Columns = append(tbl.Columns, trends.Column{Query: name, Scores: scores})
	}
	return tbl
}

func TestMergeColumnsInBatchOrder(t *testing.T) {
	dates := []time.Time{day(1), day(2)}
	results := []BatchResult{
		{Batch: []string{"a", "b"}, Table: makeTable(dates, []string{"a", "b"}, [][]int{{1, 2}, {3, 4}})},
		{Batch: []string{"c"}, Table: makeTable(dates, []string{"c"}, [][]int{{5, 6}})},
	}

	out, err := Merge(results)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out.Table.Queries())
	assert.Empty(t, out.Omitted)

	c := out.Table.Column("c")
	require.NotNil(t, c)
	assert.Equal(t, trends.Score{Value: 6, Valid: true}, c.Scores[1])
}

func TestMergeDuplicateColumnsFirstWins(t *testing.T) {
	dates := []time.Time{day(1)}
	results := []BatchResult{
		{Batch: []string{"a"}, Table: makeTable(dates, []string{"a"}, [][]int{{10}})},
		{Batch: []string{"a", "b"}, Table: makeTable(dates, []string{"a", "b"}, [][]int{{99}, {7}})},
	}

	out, err := Merge(results)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Table.Queries())
	assert.Equal(t, 10, out.Table.Column("a").Scores[0].Value)
	assert.Empty(t, out.Omitted)
}

func TestMergeOuterUnionOfDates(t *testing.T) {
	results := []BatchResult{
		{Batch: []string{"a"}, Table: makeTable([]time.Time{day(1), day(2)}, []string{"a"}, [][]int{{1, 2}})},
		{Batch: []string{"b"}, Table: makeTable([]time.Time{day(2), day(3)}, []string{"b"}, [][]int{{3, 4}})},
	}

	out, err := Merge(results)
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, out.Table.Dates)

	a := out.Table.Column("a")
	assert.True(t, a.Scores[0].Valid)
	assert.True(t, a.Scores[1].Valid)
	assert.False(t, a.Scores[2].Valid, "date outside batch range must be invalid")

	b := out.Table.Column("b")
	assert.False(t, b.Scores[0].Valid)
	assert.Equal(t, trends.Score{Value: 3, Valid: true}, b.Scores[1])
	assert.Equal(t, trends.Score{Value: 4, Valid: true}, b.Scores[2])
}

func TestMergeFailedBatchOmitsQueries(t *testing.T) {
	dates := []time.Time{day(1)}
	results := []BatchResult{
		{Batch: []string{"a"}, Table: makeTable(dates, []string{"a"}, [][]int{{1}})},
		{Batch: []string{"b", "c"}, Err: errors.New("fetch failed")},
	}

	out, err := Merge(results)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Table.Queries())
	assert.Equal(t, []string{"b", "c"}, out.Omitted)
}

func TestMergeProviderDroppedColumn(t *testing.T) {
	dates := []time.Time{day(1)}
	results := []BatchResult{
		{Batch: []string{"a", "b"}, Table: makeTable(dates, []string{"a"}, [][]int{{1}})},
	}

	out, err := Merge(results)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Table.Queries())
	assert.Equal(t, []string{"b"}, out.Omitted)
}

func TestMergeAllBatchesFailed(t *testing.T) {
	results := []BatchResult{
		{Batch: []string{"a"}, Err: errors.New("boom")},
		{Batch: []string{"b"}, Err: errors.New("boom")},
	}

	_, err := Merge(results)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestMergeNoResults(t *testing.T) {
	_, err := Merge(nil)
	assert.ErrorIs(t, err, ErrNoData)
}
