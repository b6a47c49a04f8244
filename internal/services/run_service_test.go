package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/exporter"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

// stubClient serves a fixed table and counts calls.
type stubClient struct {
	calls atomic.Int64
	fail  bool
}

func (c *stubClient) InterestOverTime(ctx context.Context, queries []string, timeframe trends.Timeframe) (*trends.InterestTable, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("upstream unavailable")
	}

	tbl := &trends.InterestTable{
		Dates: []time.Time{time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)},
	}
	for _, q := range queries {
		tbl.Columns = append(tbl.Columns, trends.Column{
			Query:  q,
			Scores: []trends.Score{{Value: 50, Valid: true}},
		})
	}
	return tbl, nil
}

func testService(t *testing.T, client trends.Client) *RunService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := pipeline.NewRunner(client, pipeline.DefaultBatchSize, logger, nil)
	csvExporter := exporter.NewCSVExporter(t.TempDir(), logger)
	return NewRunService(NewUploadStore(), runner, csvExporter, nil, time.Minute, logger, nil)
}

func waitForRun(t *testing.T, svc *RunService, id string) pipeline.RunSnapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("run %s did not finish", id)
		case <-time.After(10 * time.Millisecond):
		}

		snap, err := svc.Get(id)
		require.NoError(t, err)
		if snap.Status == pipeline.RunStatusCompleted || snap.Status == pipeline.RunStatusFailed {
			return snap
		}
	}
}

func TestUploadStore(t *testing.T) {
	store := NewUploadStore()
	assert.Equal(t, 0, store.Count())

	upload := store.Add("queries.csv", []string{"coffee", "tea"})
	assert.NotEmpty(t, upload.ID)
	assert.Equal(t, 1, store.Count())

	got, err := store.Get(upload.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee", "tea"}, got.Queries)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestStartRunUnknownUpload(t *testing.T) {
	svc := testService(t, &stubClient{})
	_, err := svc.StartRun(context.Background(), "missing", 12)
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestStartRunInvalidMonths(t *testing.T) {
	svc := testService(t, &stubClient{})
	upload := svc.uploads.Add("queries.csv", []string{"coffee"})

	_, err := svc.StartRun(context.Background(), upload.ID, 6)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunLifecycle(t *testing.T) {
	client := &stubClient{}
	svc := testService(t, client)
	upload := svc.uploads.Add("queries.csv", []string{"coffee", "tea"})

	snap, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, snap.Months)
	assert.Equal(t, 2, snap.QueryCount)
	assert.Equal(t, 1, snap.BatchesTotal)

	final := waitForRun(t, svc, snap.ID)
	assert.Equal(t, pipeline.RunStatusCompleted, final.Status)
	assert.Equal(t, pipeline.StageExported, final.Stage)
	assert.False(t, final.FromCache)
	assert.NotEmpty(t, final.Filename)
	assert.Empty(t, final.Omitted)

	path, filename, err := svc.DownloadPath(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, final.Filename, filename)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "date,coffee,tea")
}

func TestRunMemoization(t *testing.T) {
	client := &stubClient{}
	svc := testService(t, client)
	upload := svc.uploads.Add("queries.csv", []string{"coffee", "tea"})

	first, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	firstFinal := waitForRun(t, svc, first.ID)
	require.Equal(t, pipeline.RunStatusCompleted, firstFinal.Status)
	callsAfterFirst := client.calls.Load()

	second, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	secondFinal := waitForRun(t, svc, second.ID)

	assert.Equal(t, pipeline.RunStatusCompleted, secondFinal.Status)
	assert.True(t, secondFinal.FromCache)
	assert.Equal(t, firstFinal.Filename, secondFinal.Filename)
	assert.Equal(t, callsAfterFirst, client.calls.Load(), "cached run must not refetch")
}

func TestRunDifferentTimeframeNotCached(t *testing.T) {
	client := &stubClient{}
	svc := testService(t, client)
	upload := svc.uploads.Add("queries.csv", []string{"coffee"})

	first, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	waitForRun(t, svc, first.ID)
	callsAfterFirst := client.calls.Load()

	second, err := svc.StartRun(context.Background(), upload.ID, 24)
	require.NoError(t, err)
	final := waitForRun(t, svc, second.ID)

	assert.Equal(t, pipeline.RunStatusCompleted, final.Status)
	assert.False(t, final.FromCache)
	assert.Greater(t, client.calls.Load(), callsAfterFirst)
}

func TestRunAllBatchesFail(t *testing.T) {
	svc := testService(t, &stubClient{fail: true})
	upload := svc.uploads.Add("queries.csv", []string{"coffee"})

	snap, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)

	final := waitForRun(t, svc, snap.ID)
	assert.Equal(t, pipeline.RunStatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)

	_, _, err = svc.DownloadPath(snap.ID)
	assert.ErrorIs(t, err, ErrRunFailed)
}

func TestDownloadPathStates(t *testing.T) {
	svc := testService(t, &stubClient{})

	_, _, err := svc.DownloadPath("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListOrder(t *testing.T) {
	svc := testService(t, &stubClient{})
	upload := svc.uploads.Add("queries.csv", []string{"coffee"})

	first, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	waitForRun(t, svc, first.ID)

	second, err := svc.StartRun(context.Background(), upload.ID, 24)
	require.NoError(t, err)
	waitForRun(t, svc, second.ID)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)
}

func TestStatusNotifier(t *testing.T) {
	svc := testService(t, &stubClient{})

	var mu sync.Mutex
	var transitions []string
	svc.SetStatusNotifier(func(runID, status, stage string) {
		mu.Lock()
		transitions = append(transitions, status)
		mu.Unlock()
	})

	upload := svc.uploads.Add("queries.csv", []string{"coffee"})
	snap, err := svc.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)
	waitForRun(t, svc, snap.ID)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, transitions)
	assert.Equal(t, "running", transitions[0])
	assert.Equal(t, "completed", transitions[len(transitions)-1])
}
