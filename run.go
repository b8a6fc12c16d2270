package chronograph

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfalkner/chronograph/verify"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusPending     Status = "pending"
	StatusExtracting  Status = "extracting"
	StatusGraphing    Status = "graphing"
	StatusDiscovering Status = "discovering"
	StatusVerifying   Status = "verifying"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Stage names a pipeline stage. Stage names match the in-flight status the
// run holds while that stage executes, so a failed report's stage field
// reads the same as the status it interrupted.
type Stage string

const (
	StageExtracting  Stage = "extracting"
	StageGraphing    Stage = "graphing"
	StageDiscovering Stage = "discovering"
	StageVerifying   Stage = "verifying"
)

// StageResult records one stage's outcome. The run's stage results are
// append-only: exactly one entry per stage that was entered.
type StageResult struct {
	Stage     Stage  `json:"stage"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Run is one end-to-end pipeline execution. It is created at entry,
// mutated only by the orchestrator, and discarded once the caller has the
// final report.
type Run struct {
	ID           string
	Caller       string
	DocumentPath string
	Status       Status
	StartedAt    time.Time
	StageResults []StageResult
}

// newRun creates a Run with an identifier derived from the caller identity
// and the current UTC time. A short random suffix keeps two runs from the
// same caller in the same second distinct.
func newRun(caller, documentPath string) *Run {
	if caller == "" {
		caller = "anonymous"
	}
	ts := time.Now().UTC().Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Run{
		ID:           fmt.Sprintf("%s_%s_%s", caller, ts, suffix),
		Caller:       caller,
		DocumentPath: documentPath,
		Status:       StatusPending,
		StartedAt:    time.Now().UTC(),
	}
}

// record appends a stage outcome to the run.
func (r *Run) record(stage Stage, ok bool, detail string, err error, elapsed time.Duration) {
	sr := StageResult{
		Stage:     stage,
		OK:        ok,
		Detail:    detail,
		ElapsedMs: elapsed.Milliseconds(),
	}
	if err != nil {
		sr.Error = err.Error()
	}
	r.StageResults = append(r.StageResults, sr)
}

// Failure describes the fatal stage failure that terminated a run.
type Failure struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// Report is the aggregated result of a run. It is always well-formed:
// regardless of which stage stopped the run, callers get the run id, the
// final status, the text length, and the attempted counts.
type Report struct {
	RunID             string `json:"run_id"`
	Status            Status `json:"status"`
	TextLength        int    `json:"text_length"`
	ElementCount      int    `json:"element_count"`
	PatternCount      int    `json:"pattern_count"`
	QuestionCount     int    `json:"question_count"`
	VerificationCount int    `json:"verification_count"`

	// NoHypotheses marks the early-completed outcome where discovery
	// produced zero questions. Distinct from Failure.
	NoHypotheses bool `json:"no_hypotheses"`

	Questions []string        `json:"questions,omitempty"`
	Results   []verify.Result `json:"results,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`

	StageResults []StageResult `json:"stage_results"`
	ElapsedMs    int64         `json:"elapsed_ms"`
}
