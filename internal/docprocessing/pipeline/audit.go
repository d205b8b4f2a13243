package pipeline

import (
	"sync"
	"time"
)

// Stage identifies one step of the extraction protocol.
type Stage int

const (
	StageEncode Stage = iota + 1
	StageStructured
	StageRaw
	StageCrossValidation
)

func (s Stage) String() string {
	switch s {
	case StageEncode:
		return "encode"
	case StageStructured:
		return "structured_extraction"
	case StageRaw:
		return "raw_extraction"
	case StageCrossValidation:
		return "cross_validation"
	}
	return "unknown"
}

// StepStatus is the state of one audit record.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepRecord is one entry of the audit trail.
type StepRecord struct {
	Stage       Stage      `json:"stage"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	RawOutput   any        `json:"raw_output"`
	Status      StepStatus `json:"status"`
	ElapsedMs   int64      `json:"elapsed_ms"`
}

// AuditTrail is an append-only list of step records. A record is written
// twice at most: once when its stage begins and once when the stage's call
// returns. It is safe for concurrent use.
type AuditTrail struct {
	mu      sync.Mutex
	records []StepRecord
	started []time.Time
}

// Begin appends a running record for stage and returns its index.
func (a *AuditTrail) Begin(stage Stage, description string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, StepRecord{
		Stage:       stage,
		Name:        stage.String(),
		Description: description,
		RawOutput:   map[string]any{},
		Status:      StepRunning,
	})
	a.started = append(a.started, time.Now())
	return len(a.records) - 1
}

// Complete backfills the output of a running record.
func (a *AuditTrail) Complete(idx int, output any) {
	a.finish(idx, output, StepCompleted)
}

// Fail backfills a running record with {"error": message}.
func (a *AuditTrail) Fail(idx int, err error) {
	a.finish(idx, map[string]any{"error": err.Error()}, StepFailed)
}

func (a *AuditTrail) finish(idx int, output any, status StepStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx < 0 || idx >= len(a.records) || a.records[idx].Status != StepRunning {
		return
	}
	a.records[idx].RawOutput = output
	a.records[idx].Status = status
	a.records[idx].ElapsedMs = time.Since(a.started[idx]).Milliseconds()
}

// Records returns a copy of the trail in stage order.
func (a *AuditTrail) Records() []StepRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StepRecord, len(a.records))
	copy(out, a.records)
	return out
}
