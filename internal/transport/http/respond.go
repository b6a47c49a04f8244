package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "github.com/Spenny12/Google-Trends-bulk-tool/internal/errors"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/infrastructure"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/middleware"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/services"
)

// handleServiceError maps service errors to RFC 7807 problem responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.GetTraceID(ctx)),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	instance := r.URL.Path + "#" + reqID

	var problem *apierrors.ProblemDetails

	switch {
	case errors.Is(err, services.ErrUploadNotFound):
		problem = apierrors.NewProblemDetails(
			http.StatusNotFound,
			apierrors.TypeUploadNotFound,
			"Upload Not Found",
			"No uploaded query file matches the given upload ID",
			instance,
		)

	case errors.Is(err, services.ErrRunNotFound):
		problem = apierrors.NewProblemDetails(
			http.StatusNotFound,
			apierrors.TypeRunNotFound,
			"Run Not Found",
			"No run matches the given run ID",
			instance,
		)

	case errors.Is(err, services.ErrRunNotCompleted):
		problem = apierrors.NewProblemDetails(
			http.StatusConflict,
			apierrors.TypeRunNotFinished,
			"Run Not Finished",
			"The run has not completed yet, so there is no file to download",
			instance,
		)

	case errors.Is(err, services.ErrRunFailed):
		problem = apierrors.NewProblemDetails(
			http.StatusBadGateway,
			apierrors.TypeNoTrendsData,
			"Run Failed",
			"The run failed and produced no data to download",
			instance,
		)

	case errors.Is(err, services.ErrInvalidInput):
		problem = apierrors.NewProblemDetails(
			http.StatusUnprocessableEntity,
			apierrors.TypeValidation,
			"Invalid Input",
			err.Error(),
			instance,
		)

	case errors.Is(err, pipeline.ErrMalformedInput):
		problem = apierrors.NewProblemDetails(
			http.StatusUnprocessableEntity,
			apierrors.TypeValidation,
			"Malformed Query File",
			err.Error(),
			instance,
		)

	case errors.Is(err, pipeline.ErrEmptyInput):
		problem = apierrors.NewProblemDetails(
			http.StatusUnprocessableEntity,
			apierrors.TypeEmptyQueryFile,
			"Empty Query File",
			"The uploaded file contains no usable queries",
			instance,
		)

	case errors.Is(err, context.DeadlineExceeded):
		problem = apierrors.NewProblemDetails(
			http.StatusGatewayTimeout,
			apierrors.TypeTimeout,
			"Request Timeout",
			"The request timed out while processing",
			instance,
		)

	case errors.Is(err, context.Canceled):
		problem = apierrors.NewProblemDetails(
			http.StatusRequestTimeout,
			apierrors.TypeTimeout,
			"Request Canceled",
			"The request was canceled",
			instance,
		)

	default:
		problem = apierrors.NewProblemDetails(
			http.StatusInternalServerError,
			apierrors.TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred",
			instance,
		)
	}

	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		problem = problem.WithExtension("trace_id", traceID)
	}

	render.Render(w, r, problem)
}
