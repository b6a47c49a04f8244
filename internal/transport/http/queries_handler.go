package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/Spenny12/Google-Trends-bulk-tool/internal/errors"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/infrastructure"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/middleware"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/services"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/validation"
)

const (
	// maxUploadBytes caps the size of an uploaded query file.
	maxUploadBytes = 8 << 20

	// previewLimit is the number of queries echoed back after an upload.
	previewLimit = 10
)

// QueriesHandler handles query file uploads.
type QueriesHandler struct {
	uploads   *services.UploadStore
	validator *validation.UploadValidator
	logger    *slog.Logger
	metrics   *infrastructure.BusinessMetrics
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(uploads *services.UploadStore, logger *slog.Logger) *QueriesHandler {
	if uploads == nil {
		panic("uploads cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueriesHandler{
		uploads:   uploads,
		validator: validation.NewUploadValidator(maxUploadBytes, logger),
		logger:    logger.With(slog.String("handler", "queries")),
	}
}

// SetMetrics attaches business metrics recording to the handler.
func (h *QueriesHandler) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	h.metrics = metrics
}

// Routes returns a chi router for query upload endpoints.
func (h *QueriesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30*time.Second, h.logger))
	r.Use(middleware.ContentTypeValidator("multipart/form-data"))
	r.Post("/", h.Upload)
	return r
}

// uploadResponse is returned after a successful query file upload.
type uploadResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	QueryCount int       `json:"query_count"`
	Preview    []string  `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

// Upload handles POST /api/queries. It accepts a multipart form with a
// "file" field holding a CSV or XLSX query list.
func (h *QueriesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			apierrors.TypeValidation,
			"Invalid Upload",
			"Expected a multipart form with a \"file\" field",
			r.URL.Path+"#"+reqID,
		)
		render.Render(w, r, problem)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			apierrors.TypeValidation,
			"Missing File",
			"The multipart form must include a \"file\" field",
			r.URL.Path+"#"+reqID,
		)
		render.Render(w, r, problem)
		return
	}
	defer file.Close()

	if err := h.validator.Validate(header.Filename, header.Size); err != nil {
		problem := apierrors.NewProblemDetails(
			http.StatusUnprocessableEntity,
			apierrors.TypeValidation,
			"Invalid Query File",
			err.Error(),
			r.URL.Path+"#"+reqID,
		)
		render.Render(w, r, problem)
		return
	}

	queries, err := pipeline.LoadQueries(header.Filename, file)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	upload := h.uploads.Add(header.Filename, queries)

	if h.metrics != nil {
		h.metrics.QueriesLoaded.Add(ctx, int64(len(queries)))
	}

	h.logger.InfoContext(ctx, "query file uploaded",
		slog.String("upload_id", upload.ID),
		slog.String("filename", upload.Filename),
		slog.Int("query_count", len(queries)))

	preview := queries
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, uploadResponse{
		ID:         upload.ID,
		Filename:   upload.Filename,
		QueryCount: len(queries),
		Preview:    preview,
		CreatedAt:  upload.CreatedAt,
	})
}
