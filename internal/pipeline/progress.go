package pipeline

import (
	"context"
	"log/slog"
)

// ProgressReporter receives one notification per finished batch.
// Implementations must not block; delivery is fire and forget.
type ProgressReporter interface {
	Report(completed, total int, label string)
}

// ReporterFunc adapts a function to the ProgressReporter interface.
type ReporterFunc func(completed, total int, label string)

// Report implements ProgressReporter.
func (f ReporterFunc) Report(completed, total int, label string) {
	f(completed, total, label)
}

// NopReporter discards progress updates.
type NopReporter struct{}

// Report implements ProgressReporter.
func (NopReporter) Report(completed, total int, label string) {}

// LogReporter writes progress updates as structured log lines. It is
// the reporter the CLI uses.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements ProgressReporter.
func (r LogReporter) Report(completed, total int, label string) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(completed) / float64(total) * 100
	}
	r.Logger.LogAttrs(context.Background(), slog.LevelInfo, "batch completed",
		slog.Int("completed", completed),
		slog.Int("total", total),
		slog.Float64("percentage", percentage),
		slog.String("batch", label),
	)
}
