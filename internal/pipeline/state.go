package pipeline

import (
	"sync"
	"time"
)

// RunStatus is the overall status of a fetch run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStage names the phase a running fetch is in. Stages advance
// strictly in order.
type RunStage string

const (
	StageLoaded   RunStage = "loaded"
	StageFetching RunStage = "fetching"
	StageMerged   RunStage = "merged"
	StageExported RunStage = "exported"
)

// RunState is the mutable state of one fetch run. All access goes
// through the methods; Snapshot produces a copy safe to serialize.
type RunState struct {
	mu sync.RWMutex

	id         string
	status     RunStatus
	stage      RunStage
	months     int
	queryCount int

	batchesTotal int
	batchesDone  int

	startTime time.Time
	endTime   *time.Time

	err       string
	omitted   []string
	filename  string
	fromCache bool
}

// RunSnapshot is an immutable view of a run, shaped for API responses.
type RunSnapshot struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	Stage        RunStage   `json:"stage,omitempty"`
	Months       int        `json:"months"`
	QueryCount   int        `json:"query_count"`
	BatchesTotal int        `json:"batches_total"`
	BatchesDone  int        `json:"batches_done"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Error        string     `json:"error,omitempty"`
	Omitted      []string   `json:"omitted_queries,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	FromCache    bool       `json:"from_cache,omitempty"`
}

// NewRunState creates a pending run.
func NewRunState(id string, months, queryCount int) *RunState {
	return &RunState{
		id:         id,
		status:     RunStatusPending,
		months:     months,
		queryCount: queryCount,
		startTime:  time.Now(),
	}
}

// Start marks the run as running.
func (s *RunState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = RunStatusRunning
	s.stage = StageLoaded
	s.startTime = time.Now()
}

// SetStage advances the run to the given stage.
func (s *RunState) SetStage(stage RunStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
}

// SetProgress records batch completion counts.
func (s *RunState) SetProgress(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesDone = done
	s.batchesTotal = total
}

// Complete marks the run as completed with its export artifact.
func (s *RunState) Complete(filename string, omitted []string, fromCache bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.endTime = &now
	s.status = RunStatusCompleted
	s.stage = StageExported
	s.filename = filename
	s.omitted = omitted
	s.fromCache = fromCache
}

// Fail marks the run as failed.
func (s *RunState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.endTime = &now
	s.status = RunStatusFailed
	if err != nil {
		s.err = err.Error()
	}
}

// ID returns the run identifier.
func (s *RunState) ID() string {
	return s.id
}

// Status returns the current status.
func (s *RunState) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Filename returns the export artifact name, empty until completed.
func (s *RunState) Filename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename
}

// Snapshot returns a copy of the current state.
func (s *RunState) Snapshot() RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := RunSnapshot{
		ID:           s.id,
		Status:       s.status,
		Stage:        s.stage,
		Months:       s.months,
		QueryCount:   s.queryCount,
		BatchesTotal: s.batchesTotal,
		BatchesDone:  s.batchesDone,
		StartTime:    s.startTime,
		Error:        s.err,
		Filename:     s.filename,
		FromCache:    s.fromCache,
	}
	if s.endTime != nil {
		t := *s.endTime
		snap.EndTime = &t
	}
	if len(s.omitted) > 0 {
		snap.Omitted = append([]string(nil), s.omitted...)
	}
	return snap
}
