package websocket

import (
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
)

// RunReporter broadcasts one run's batch progress through the hub. It
// implements pipeline.ProgressReporter.
type RunReporter struct {
	hub   *Hub
	runID string
}

// NewRunReporter binds a reporter to a run ID.
func NewRunReporter(hub *Hub, runID string) *RunReporter {
	return &RunReporter{hub: hub, runID: runID}
}

// Report implements pipeline.ProgressReporter.
func (r *RunReporter) Report(completed, total int, label string) {
	r.hub.BroadcastProgress(r.runID, completed, total, label)
}

var _ pipeline.ProgressReporter = (*RunReporter)(nil)
