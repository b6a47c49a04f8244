package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/exporter"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/infrastructure"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

// ProgressFactory builds the progress reporter for a run, typically a
// websocket broadcaster bound to the run ID. May be nil.
type ProgressFactory func(runID string) pipeline.ProgressReporter

// StatusNotifier receives run lifecycle transitions, typically to fan
// them out over websockets. May be nil.
type StatusNotifier func(runID, status, stage string)

// cacheEntry is a memoized run outcome. Identical query lists over the
// same timeframe reuse the export artifact instead of refetching.
type cacheEntry struct {
	filename string
	omitted  []string
}

// RunService owns fetch runs: registering them, executing them
// asynchronously and serving their state and artifacts.
type RunService struct {
	uploads  *UploadStore
	runner   *pipeline.Runner
	exporter *exporter.CSVExporter
	progress ProgressFactory
	notify   StatusNotifier
	logger   *slog.Logger
	metrics  *infrastructure.BusinessMetrics
	timeout  time.Duration

	mu    sync.RWMutex
	runs  map[string]*pipeline.RunState
	order []string
	cache map[string]cacheEntry

	flight singleflight.Group
}

// NewRunService creates the run service. metrics and progress may be nil.
func NewRunService(
	uploads *UploadStore,
	runner *pipeline.Runner,
	csvExporter *exporter.CSVExporter,
	progress ProgressFactory,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *infrastructure.BusinessMetrics,
) *RunService {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RunService{
		uploads:  uploads,
		runner:   runner,
		exporter: csvExporter,
		progress: progress,
		logger:   logger.With(slog.String("component", "run_service")),
		metrics:  metrics,
		timeout:  timeout,
		runs:     make(map[string]*pipeline.RunState),
		cache:    make(map[string]cacheEntry),
	}
}

// SetStatusNotifier installs a callback for run status transitions.
// Must be called before the first StartRun.
func (s *RunService) SetStatusNotifier(notify StatusNotifier) {
	s.notify = notify
}

// notifyStatus reports the run's current status and stage, if a
// notifier is installed.
func (s *RunService) notifyStatus(state *pipeline.RunState) {
	if s.notify == nil {
		return
	}
	snapshot := state.Snapshot()
	s.notify(snapshot.ID, string(snapshot.Status), string(snapshot.Stage))
}

// StartRun registers a run for the given upload and executes it in the
// background. The returned snapshot carries the run ID to poll with.
func (s *RunService) StartRun(ctx context.Context, uploadID string, months int) (pipeline.RunSnapshot, error) {
	upload, err := s.uploads.Get(uploadID)
	if err != nil {
		return pipeline.RunSnapshot{}, err
	}

	timeframe, err := trends.ParseTimeframe(months)
	if err != nil {
		return pipeline.RunSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	state := pipeline.NewRunState(uuid.New().String(), timeframe.Months(), len(upload.Queries))
	state.SetStage(pipeline.StageLoaded)
	batches := pipeline.Batch(upload.Queries, 0)
	state.SetProgress(0, len(batches))

	s.mu.Lock()
	s.runs[state.ID()] = state
	s.order = append(s.order, state.ID())
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "run registered",
		slog.String("run_id", state.ID()),
		slog.String("upload_id", uploadID),
		slog.Int("queries", len(upload.Queries)),
		slog.Int("months", timeframe.Months()),
	)

	go s.execute(state, upload.Queries, timeframe)

	return state.Snapshot(), nil
}

// execute drives one run to completion. It runs detached from the
// request context; only the service timeout bounds it.
func (s *RunService) execute(state *pipeline.RunState, queries []string, timeframe trends.Timeframe) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ctx = infrastructure.WithTraceID(ctx, state.ID())
	state.Start()
	s.notifyStatus(state)
	if s.metrics != nil {
		s.metrics.ActiveRuns.Add(ctx, 1)
		defer s.metrics.ActiveRuns.Add(ctx, -1)
	}

	start := time.Now()
	key := cacheKey(queries, timeframe)

	if entry, ok := s.cachedResult(key); ok {
		total := len(pipeline.Batch(queries, 0))
		state.SetProgress(total, total)
		state.Complete(entry.filename, entry.omitted, true)
		s.notifyStatus(state)
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.Add(ctx, 1)
		}
		s.metrics.RecordRun(ctx, "cached", time.Since(start))
		s.logger.InfoContext(ctx, "run served from cache",
			slog.String("run_id", state.ID()),
			slog.String("filename", entry.filename),
		)
		return
	}

	reporter := s.reporterFor(state)

	v, err, shared := s.flight.Do(key, func() (interface{}, error) {
		result, err := s.runner.Run(ctx, queries, timeframe, reporter)
		if err != nil {
			return nil, err
		}
		state.SetStage(pipeline.StageMerged)

		filename, err := s.exporter.Export(result.Table, timeframe.Months())
		if err != nil {
			return nil, err
		}

		entry := cacheEntry{filename: filename, omitted: result.Omitted}
		s.storeResult(key, entry)
		return entry, nil
	})
	if err != nil {
		state.Fail(err)
		s.notifyStatus(state)
		s.metrics.RecordRun(ctx, "failure", time.Since(start))
		s.logger.ErrorContext(ctx, "run failed",
			slog.String("run_id", state.ID()),
			slog.String("error", err.Error()),
		)
		return
	}

	entry := v.(cacheEntry)
	state.Complete(entry.filename, entry.omitted, shared)
	s.notifyStatus(state)
	s.metrics.RecordRun(ctx, "success", time.Since(start))
	s.logger.InfoContext(ctx, "run completed",
		slog.String("run_id", state.ID()),
		slog.String("filename", entry.filename),
		slog.Int("omitted", len(entry.omitted)),
		slog.Bool("shared", shared),
	)
}

// reporterFor combines run state updates with the external reporter.
func (s *RunService) reporterFor(state *pipeline.RunState) pipeline.ProgressReporter {
	var external pipeline.ProgressReporter = pipeline.NopReporter{}
	if s.progress != nil {
		external = s.progress(state.ID())
	}
	return pipeline.ReporterFunc(func(completed, total int, label string) {
		state.SetStage(pipeline.StageFetching)
		state.SetProgress(completed, total)
		external.Report(completed, total, label)
	})
}

// Get returns the snapshot of one run.
func (s *RunService) Get(id string) (pipeline.RunSnapshot, error) {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return pipeline.RunSnapshot{}, ErrRunNotFound
	}
	return state.Snapshot(), nil
}

// List returns snapshots of all runs, newest first.
func (s *RunService) List() []pipeline.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]pipeline.RunSnapshot, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		snapshots = append(snapshots, s.runs[s.order[i]].Snapshot())
	}
	return snapshots
}

// DownloadPath resolves the export artifact of a completed run.
func (s *RunService) DownloadPath(id string) (path, filename string, err error) {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return "", "", ErrRunNotFound
	}

	switch state.Status() {
	case pipeline.RunStatusCompleted:
		filename = state.Filename()
		return s.exporter.Path(filename), filename, nil
	case pipeline.RunStatusFailed:
		return "", "", ErrRunFailed
	default:
		return "", "", ErrRunNotCompleted
	}
}

// ActiveRunCount returns the number of pending or running runs.
func (s *RunService) ActiveRunCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, state := range s.runs {
		switch state.Status() {
		case pipeline.RunStatusPending, pipeline.RunStatusRunning:
			count++
		}
	}
	return count
}

func (s *RunService) cachedResult(key string) (cacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	return entry, ok
}

func (s *RunService) storeResult(key string, entry cacheEntry) {
	s.mu.Lock()
	s.cache[key] = entry
	s.mu.Unlock()
}

// cacheKey hashes the query list and timeframe. Order matters: the
// same queries in a different order are a different run.
func cacheKey(queries []string, timeframe trends.Timeframe) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00", timeframe.Months())
	for _, q := range queries {
		h.Write([]byte(q))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
