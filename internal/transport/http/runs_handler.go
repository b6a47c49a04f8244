package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/Spenny12/Google-Trends-bulk-tool/internal/errors"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/middleware"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/services"
)

// runStatuses are the values accepted by the list status filter.
var runStatuses = []string{
	string(pipeline.RunStatusPending),
	string(pipeline.RunStatusRunning),
	string(pipeline.RunStatusCompleted),
	string(pipeline.RunStatusFailed),
}

// RunsHandler handles run lifecycle endpoints.
type RunsHandler struct {
	service    *services.RunService
	logger     *slog.Logger
	errors     *apierrors.ErrorHandler
	validation *middleware.ValidationMiddleware
	params     *middleware.QueryParamValidator
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(service *services.RunService, logger *slog.Logger) *RunsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &RunsHandler{
		service:    service,
		logger:     logger.With(slog.String("handler", "runs")),
		errors:     errorHandler,
		validation: middleware.NewValidationMiddleware(logger, errorHandler),
		params:     middleware.NewQueryParamValidator(logger, errorHandler),
	}
}

// Routes returns a chi router for run endpoints.
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30*time.Second, h.logger))
	r.Use(middleware.ContentTypeValidator("application/json"))
	r.Use(h.validation.ValidateRequest)
	r.Post("/", h.Start)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/download", h.Download)
	return r
}

// startRunRequest is the body of POST /api/runs.
type startRunRequest struct {
	UploadID string `json:"upload_id" validate:"required,uuid4"`
	Months   int    `json:"months" validate:"oneof=12 24"`
}

// Bind implements the render.Binder interface.
func (req *startRunRequest) Bind(r *http.Request) error {
	if req.Months == 0 {
		req.Months = 12
	}
	return nil
}

// Start handles POST /api/runs and kicks off an asynchronous fetch run.
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	req := &startRunRequest{}
	if err := render.Bind(r, req); err != nil {
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			apierrors.TypeValidation,
			"Invalid Request",
			"Request body must be valid JSON with upload_id and months fields",
			r.URL.Path+"#"+reqID,
		)
		render.Render(w, r, problem)
		return
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	snapshot, err := h.service.StartRun(ctx, req.UploadID, req.Months)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", snapshot.ID),
		slog.String("upload_id", req.UploadID),
		slog.Int("months", req.Months))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, snapshot)
}

// List handles GET /api/runs and returns runs, newest first. The
// status and limit query parameters narrow the result.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	status, ok := h.params.ValidateEnum(w, r, "status", runStatuses, "")
	if !ok {
		return
	}
	limit, ok := h.params.ValidateInt(w, r, "limit", 1, 500, 0)
	if !ok {
		return
	}

	runs := h.service.List()
	if status != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if string(run.Status) == status {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	render.JSON(w, r, runs)
}

// Get handles GET /api/runs/{id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, snapshot)
}

// Download handles GET /api/runs/{id}/download and streams the exported CSV.
func (h *RunsHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, filename, err := h.service.DownloadPath(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}
