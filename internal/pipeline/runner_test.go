package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

// fakeClient returns canned tables per call and records the batches it
// was asked for.
type fakeClient struct {
	mu      sync.Mutex
	calls   [][]string
	failOn  map[int]error
	baseDay time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failOn:  make(map[int]error),
		baseDay: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeClient) InterestOverTime(ctx context.Context, queries []string, timeframe trends.Timeframe) (*trends.InterestTable, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, append([]string(nil), queries...))
	f.mu.Unlock()

	if err, ok := f.failOn[call]; ok {
		return nil, err
	}

	tbl := &trends.InterestTable{
		Dates: []time.Time{f.baseDay, f.baseDay.AddDate(0, 0, 7)},
	}
	for i, q := range queries {
		tbl.Columns = append(tbl.Columns, trends.Column{
			Query: q,
			Scores: []trends.Score{
				{Value: 10 + i, Valid: true},
				{Value: 20 + i, Valid: true},
			},
		})
	}
	return tbl, nil
}

// recordingReporter captures progress callbacks in order.
type recordingReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *recordingReporter) Report(completed, total int, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, fmt.Sprintf("%d/%d %s", completed, total, label))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queriesN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("query-%d", i)
	}
	return out
}

func TestRunnerEmptyInput(t *testing.T) {
	runner := NewRunner(newFakeClient(), DefaultBatchSize, discardLogger(), nil)
	_, err := runner.Run(context.Background(), nil, trends.Timeframe12Months, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRunnerSixQueriesTwoBatches(t *testing.T) {
	client := newFakeClient()
	reporter := &recordingReporter{}
	runner := NewRunner(client, DefaultBatchSize, discardLogger(), nil)

	result, err := runner.Run(context.Background(), queriesN(6), trends.Timeframe12Months, reporter)
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[0], 5)
	assert.Len(t, client.calls[1], 1)

	assert.Len(t, result.Table.Columns, 6)
	assert.Empty(t, result.Omitted)
	assert.Empty(t, result.BatchErrors)

	require.Len(t, reporter.reports, 2)
	assert.Contains(t, reporter.reports[0], "1/2")
	assert.Contains(t, reporter.reports[1], "2/2 query-5")
}

func TestRunnerContinuesPastFailedBatch(t *testing.T) {
	client := newFakeClient()
	client.failOn[0] = errors.New("upstream unavailable")
	reporter := &recordingReporter{}
	runner := NewRunner(client, DefaultBatchSize, discardLogger(), nil)

	result, err := runner.Run(context.Background(), queriesN(6), trends.Timeframe24Months, reporter)
	require.NoError(t, err)

	require.Len(t, client.calls, 2, "second batch must still be fetched")
	assert.Len(t, result.Table.Columns, 1)
	assert.Equal(t, queriesN(6)[:5], result.Omitted)

	require.Len(t, result.BatchErrors, 1)
	assert.Equal(t, 0, result.BatchErrors[0].BatchIndex)
	assert.ErrorIs(t, result.BatchErrors[0], client.failOn[0])

	assert.Len(t, reporter.reports, 2, "failed batches still report progress")
}

func TestRunnerAllBatchesFail(t *testing.T) {
	client := newFakeClient()
	client.failOn[0] = errors.New("boom")
	client.failOn[1] = errors.New("boom")
	runner := NewRunner(client, DefaultBatchSize, discardLogger(), nil)

	_, err := runner.Run(context.Background(), queriesN(6), trends.Timeframe12Months, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRunnerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(newFakeClient(), DefaultBatchSize, discardLogger(), nil)
	_, err := runner.Run(ctx, queriesN(3), trends.Timeframe12Months, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
