package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/infrastructure"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

// BatchFetchError records one failed batch fetch. The run continues
// past it; failed batches simply contribute no columns.
type BatchFetchError struct {
	BatchIndex int      `json:"batch_index"`
	Queries    []string `json:"queries"`
	Err        error    `json:"-"`
	Message    string   `json:"error"`
}

func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("batch %d (%s): %v", e.BatchIndex, strings.Join(e.Queries, ", "), e.Err)
}

func (e *BatchFetchError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a completed fetch run, before export.
type Result struct {
	Table       *trends.InterestTable
	Omitted     []string
	BatchErrors []*BatchFetchError
	Timeframe   trends.Timeframe
}

// Runner drives the fetch-and-merge pipeline: batch the query list,
// fetch each batch sequentially, merge the tables.
type Runner struct {
	client    trends.Client
	logger    *slog.Logger
	metrics   *infrastructure.BusinessMetrics
	batchSize int
}

// NewRunner creates a pipeline runner. metrics may be nil.
func NewRunner(client trends.Client, batchSize int, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *Runner {
	return &Runner{
		client:    client,
		logger:    logger.With(slog.String("component", "pipeline_runner")),
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// Run fetches interest data for queries over the given timeframe.
// Batches are fetched strictly in order; a failing batch is logged,
// reported and skipped. The reporter is notified once per batch.
// ErrEmptyInput is returned before any fetch when queries is empty,
// ErrNoData when every batch failed.
func (r *Runner) Run(ctx context.Context, queries []string, timeframe trends.Timeframe, reporter ProgressReporter) (*Result, error) {
	if len(queries) == 0 {
		return nil, ErrEmptyInput
	}
	if reporter == nil {
		reporter = NopReporter{}
	}

	batches := Batch(queries, r.batchSize)
	results := make([]BatchResult, 0, len(batches))
	var batchErrors []*BatchFetchError

	r.logger.InfoContext(ctx, "fetch started",
		slog.Int("queries", len(queries)),
		slog.Int("batches", len(batches)),
		slog.String("timeframe", timeframe.String()),
	)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		table, err := r.client.InterestOverTime(ctx, batch, timeframe)
		if err != nil {
			fetchErr := &BatchFetchError{
				BatchIndex: i,
				Queries:    append([]string(nil), batch...),
				Err:        err,
				Message:    err.Error(),
			}
			batchErrors = append(batchErrors, fetchErr)
			results = append(results, BatchResult{Batch: batch, Err: err})

			r.logger.WarnContext(ctx, "batch fetch failed",
				slog.Int("batch", i),
				slog.String("queries", strings.Join(batch, ", ")),
				slog.String("error", err.Error()),
			)
			r.metrics.RecordBatchFetch(ctx, "failure", time.Since(start))
		} else {
			results = append(results, BatchResult{Batch: batch, Table: table})
			r.metrics.RecordBatchFetch(ctx, "success", time.Since(start))
		}

		reporter.Report(i+1, len(batches), strings.Join(batch, ", "))
	}

	merged, err := Merge(results)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "fetch merged",
		slog.Int("columns", len(merged.Table.Columns)),
		slog.Int("dates", len(merged.Table.Dates)),
		slog.Int("omitted", len(merged.Omitted)),
		slog.Int("failed_batches", len(batchErrors)),
	)

	return &Result{
		Table:       merged.Table,
		Omitted:     merged.Omitted,
		BatchErrors: batchErrors,
		Timeframe:   timeframe,
	}, nil
}
