package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome for one verified question. Error is set only when
// the verification call itself failed; an inconclusive verdict means the
// call succeeded but found no strong answer.
type Result struct {
	Question string   `json:"question"`
	Verdict  Verdict  `json:"verdict,omitempty"`
	Evidence []string `json:"evidence,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// defaultConcurrency bounds parallel verification calls.
const defaultConcurrency = 4

// Verifier verifies batches of questions.
type Verifier struct {
	client      Client
	outputDir   string
	concurrency int
	timeout     time.Duration
}

// New creates a Verifier. outputDir, when non-empty, receives one result
// artifact per run.
func New(client Client, outputDir string, concurrency int, timeout time.Duration) *Verifier {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Verifier{
		client:      client,
		outputDir:   outputDir,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Verify verifies every question independently and returns exactly one
// result per question, in input order, regardless of completion order.
// One question's failure never aborts the batch, and batch cancellation
// still yields an entry for every question (unfinished ones carry an
// error). Results are additionally persisted as a per-run artifact; that
// write is best-effort and never alters the returned results.
func (v *Verifier) Verify(ctx context.Context, runID string, questions []string) []Result {
	results := make([]Result, len(questions))
	for i, q := range questions {
		results[i].Question = q
	}
	if len(questions) == 0 {
		return results
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(v.concurrency)

	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Error = err.Error()
				return nil
			}

			qctx, cancel := context.WithTimeout(ctx, v.timeout)
			defer cancel()

			verdict, evidence, err := v.client.Verify(qctx, q)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Verdict = verdict
			results[i].Evidence = evidence
			return nil
		})
	}
	_ = g.Wait() // per-question errors are captured inline

	// A worker that never ran (cancelled before scheduling) leaves neither
	// verdict nor error; mark those rather than omit them.
	for i := range results {
		if results[i].Verdict == "" && results[i].Error == "" {
			if err := ctx.Err(); err != nil {
				results[i].Error = err.Error()
			} else {
				results[i].Error = "verification did not complete"
			}
		}
	}

	slog.Info("verify: batch complete",
		"run_id", runID, "questions", len(questions),
		"elapsed", time.Since(start).Round(time.Millisecond))

	v.writeArtifact(runID, results)
	return results
}

// runArtifact is the on-disk shape of a run's verification results.
type runArtifact struct {
	RunID      string    `json:"run_id"`
	VerifiedAt time.Time `json:"verified_at"`
	Results    []Result  `json:"results"`
}

// writeArtifact persists the batch for later auditing. Failures are
// logged, never propagated.
func (v *Verifier) writeArtifact(runID string, results []Result) {
	if v.outputDir == "" {
		return
	}
	if err := os.MkdirAll(v.outputDir, 0o755); err != nil {
		slog.Warn("verify: output dir creation failed", "dir", v.outputDir, "error", err)
		return
	}

	artifact := runArtifact{
		RunID:      runID,
		VerifiedAt: time.Now().UTC(),
		Results:    results,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		slog.Warn("verify: artifact encoding failed", "run_id", runID, "error", err)
		return
	}

	path := filepath.Join(v.outputDir, runID+"_results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("verify: artifact write failed", "path", path, "error", err)
	}
}
