package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/exporter"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/services"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTrendsClient returns a fixed three point table for any batch.
type stubTrendsClient struct{}

func (stubTrendsClient) InterestOverTime(ctx context.Context, queries []string, timeframe trends.Timeframe) (*trends.InterestTable, error) {
	base := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	table := &trends.InterestTable{
		Dates: []time.Time{base, base.AddDate(0, 0, 7), base.AddDate(0, 0, 14)},
	}
	for i, q := range queries {
		table.Columns = append(table.Columns, trends.Column{
			Query: q,
			Scores: []trends.Score{
				{Value: 10 + i, Valid: true},
				{Value: 20 + i, Valid: true},
				{Value: 30 + i, Valid: true},
			},
		})
	}
	return table, nil
}

type testEnv struct {
	uploads *services.UploadStore
	runs    *services.RunService
	router  chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	uploads := services.NewUploadStore()
	runner := pipeline.NewRunner(stubTrendsClient{}, 0, logger, nil)
	csvExporter := exporter.NewCSVExporter(t.TempDir(), logger)
	runs := services.NewRunService(uploads, runner, csvExporter, nil, time.Minute, logger, nil)

	r := chi.NewRouter()
	r.Mount("/api/queries", NewQueriesHandler(uploads, logger).Routes())
	r.Mount("/api/runs", NewRunsHandler(runs, logger).Routes())

	return &testEnv{uploads: uploads, runs: runs, router: r}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/queries", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitForRun(t *testing.T, id string) pipeline.RunSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := e.runs.Get(id)
		require.NoError(t, err)
		if snapshot.Status == pipeline.RunStatusCompleted || snapshot.Status == pipeline.RunStatusFailed {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", id)
	return pipeline.RunSnapshot{}
}

func TestUploadQueries(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\ntea\nmatcha\n")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID         string   `json:"id"`
		Filename   string   `json:"filename"`
		QueryCount int      `json:"query_count"`
		Preview    []string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "queries.csv", resp.Filename)
	assert.Equal(t, 3, resp.QueryCount)
	assert.Equal(t, []string{"coffee", "tea", "matcha"}, resp.Preview)
	assert.Equal(t, 1, env.uploads.Count())
}

func TestUploadEmptyFile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "empty.csv", "\n\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/queries/empty-file", problem["type"])
}

func TestUploadMalformedCSV(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\nbad\"quote\"field,x\ntea\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/validation", problem["type"])
	assert.Equal(t, "Malformed Query File", problem["title"])
	assert.Contains(t, problem["detail"], "could not be parsed")
}

func TestUploadUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.txt", "coffee\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/validation", problem["type"])
}

func TestUploadMissingFileField(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("other", "value"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/queries", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func startRun(t *testing.T, env *testEnv, uploadID string, months int) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"upload_id": uploadID,
		"months":    months,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestStartRunAndDownload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\ntea\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	var upload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	rec = startRun(t, env, upload.ID, 12)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 12, run.Months)

	final := env.waitForRun(t, run.ID)
	require.Equal(t, pipeline.RunStatusCompleted, final.Status)
	assert.Contains(t, final.Filename, "google_trends_data_12months_")

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/download", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), final.Filename)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "date,coffee,tea"), "unexpected csv header: %q", body)
}

func TestStartRunUnknownUpload(t *testing.T) {
	env := newTestEnv(t)

	rec := startRun(t, env, "5f9c1a88-6c3e-4f7a-9a39-2f41a4f8f8d1", 12)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/queries/upload-not-found", problem["type"])
}

func TestStartRunInvalidMonths(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	var upload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	rec = startRun(t, env, upload.ID, 6)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunDefaultsMonths(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	var upload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	payload := []byte(`{"upload_id":"` + upload.ID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 12, run.Months)
	env.waitForRun(t, run.ID)
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	var upload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	rec = startRun(t, env, upload.ID, 24)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	env.waitForRun(t, run.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 24, runs[0].Months)
}

func TestListRunsFilters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "queries.csv", "coffee\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	var upload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	rec = startRun(t, env, upload.ID, 12)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	env.waitForRun(t, run.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=completed&limit=10", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?status=failed", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	runs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)

	req = httptest.NewRequest(http.MethodGet, "/api/runs?status=bogus", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/run/not-found", problem["type"])
}

func TestDownloadBeforeCompletion(t *testing.T) {
	env := newTestEnv(t)
	logger := testLogger()

	uploads := services.NewUploadStore()
	upload := uploads.Add("queries.csv", []string{"coffee"})

	// A client that blocks keeps the run in the running state.
	blocked := make(chan struct{})
	defer close(blocked)
	runner := pipeline.NewRunner(blockingClient{ch: blocked}, 0, logger, nil)
	csvExporter := exporter.NewCSVExporter(t.TempDir(), logger)
	runs := services.NewRunService(uploads, runner, csvExporter, nil, time.Minute, logger, nil)

	r := chi.NewRouter()
	r.Mount("/api/runs", NewRunsHandler(runs, logger).Routes())
	env.router = r

	snapshot, err := runs.StartRun(context.Background(), upload.ID, 12)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+snapshot.ID+"/download", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/run/not-finished", problem["type"])
}

type blockingClient struct {
	ch chan struct{}
}

func (c blockingClient) InterestOverTime(ctx context.Context, queries []string, timeframe trends.Timeframe) (*trends.InterestTable, error) {
	select {
	case <-c.ch:
		return nil, errors.New("connection released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestHealthEndpoints(t *testing.T) {
	logger := testLogger()
	uploads := services.NewUploadStore()
	runner := pipeline.NewRunner(stubTrendsClient{}, 0, logger, nil)
	csvExporter := exporter.NewCSVExporter(t.TempDir(), logger)
	runs := services.NewRunService(uploads, runner, csvExporter, nil, time.Minute, logger, nil)
	health := services.NewHealthService("1.2.3", "2026-01-01T00:00:00Z", uploads, runs, nil, logger)

	handler := NewHealthHandler(health, logger)
	r := chi.NewRouter()
	r.Mount("/api/health", handler.Routes())
	r.Get("/api/version", handler.Version)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])

	req = httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var version map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, "1.2.3", version["version"])
}

func TestServeIndex(t *testing.T) {
	handler := ServeIndex()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Google Trends Bulk Tool")

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
