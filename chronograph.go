// Package chronograph orchestrates a document analysis pipeline: text is
// extracted from a source document, distilled into a knowledge graph,
// mined for recurring patterns, and the resulting hypotheses are verified
// against an external knowledge backend.
package chronograph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfalkner/chronograph/audit"
	"github.com/mfalkner/chronograph/discovery"
	"github.com/mfalkner/chronograph/extract"
	"github.com/mfalkner/chronograph/graphstore"
	"github.com/mfalkner/chronograph/kg"
	"github.com/mfalkner/chronograph/llm"
	"github.com/mfalkner/chronograph/verify"
)

// Pipeline is the main entry point.
type Pipeline interface {
	// Process runs one document through the full pipeline and returns the
	// run report. The report is well-formed even when the run failed; the
	// returned error is then the fatal stage error.
	Process(ctx context.Context, documentPath string, opts ...ProcessOption) (*Report, error)

	// Audit returns the run audit store, or nil when auditing is disabled.
	Audit() *audit.Store

	// Close releases the graph store and audit connections.
	Close(ctx context.Context) error
}

// ProcessOption configures a single run.
type ProcessOption func(*processOptions)

type processOptions struct {
	caller           string
	extractOpts      extract.Options
	chunkSize        int
	maxPatternLength int
}

// WithCaller sets the caller identity embedded in the run identifier.
func WithCaller(caller string) ProcessOption {
	return func(o *processOptions) { o.caller = caller }
}

// WithExtractOptions overrides the configured extraction options for this run.
func WithExtractOptions(opts extract.Options) ProcessOption {
	return func(o *processOptions) { o.extractOpts = opts }
}

// WithChunkSize overrides the configured graph construction chunk size.
func WithChunkSize(n int) ProcessOption {
	return func(o *processOptions) { o.chunkSize = n }
}

// WithMaxPatternLength overrides the configured maximum pattern hop length.
func WithMaxPatternLength(n int) ProcessOption {
	return func(o *processOptions) { o.maxPatternLength = n }
}

// pipeline is the concrete implementation of Pipeline.
type pipeline struct {
	cfg       Config
	extractor *extract.Extractor
	store     graphstore.Store
	builder   *kg.Builder
	disc      *discovery.Discoverer
	verifier  *verify.Verifier
	auditor   *audit.Store
}

// New creates a Pipeline with the given configuration, connecting to the
// graph store and verifying reachability before returning.
func New(cfg Config) (Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, err := graphstore.NewNeo4jStore(graphstore.Neo4jConfig{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("opening graph store: %w", err)
	}

	storeTimeout := secondsOr(cfg.StoreTimeoutSeconds, 30)
	verifyCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := store.Verify(verifyCtx); err != nil {
		store.Close(context.Background())
		return nil, fmt.Errorf("graph store unreachable: %w", err)
	}

	agentCfg := cfg.Agent
	if cfg.UseAdvancedAgent && cfg.AdvancedAgent.Provider != "" {
		agentCfg = cfg.AdvancedAgent
	}
	agentLLM, err := llm.NewProvider(llm.Config{
		Provider: agentCfg.Provider,
		Model:    agentCfg.Model,
		BaseURL:  agentCfg.BaseURL,
		APIKey:   agentCfg.APIKey,
	})
	if err != nil {
		store.Close(context.Background())
		return nil, fmt.Errorf("creating agent provider: %w", err)
	}

	verifierLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Verifier.Provider,
		Model:    cfg.Verifier.Model,
		BaseURL:  cfg.Verifier.BaseURL,
		APIKey:   cfg.Verifier.APIKey,
	})
	if err != nil {
		store.Close(context.Background())
		return nil, fmt.Errorf("creating verifier provider: %w", err)
	}

	var auditor *audit.Store
	if cfg.AuditDBPath != "" {
		auditor, err = audit.New(cfg.AuditDBPath)
		if err != nil {
			store.Close(context.Background())
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
	}

	extractor := extract.New(extract.Config{
		OCRBaseURL:      cfg.OCR.BaseURL,
		OCRAPIKey:       cfg.OCR.APIKey,
		OCRTimeout:      secondsOr(cfg.OCRTimeoutSeconds, 120),
		MaxElementChars: cfg.MaxElementChars,
		DebugDir:        cfg.DebugDir,
	})

	builder := kg.NewBuilder(store, kg.NewAgent(agentLLM),
		cfg.AgentConcurrency, secondsOr(cfg.AgentTimeoutSeconds, 90))

	verifier := verify.New(verify.NewLLMClient(verifierLLM), cfg.OutputDir,
		cfg.VerifyConcurrency, secondsOr(cfg.VerifyTimeoutSeconds, 120))

	return &pipeline{
		cfg:       cfg,
		extractor: extractor,
		store:     store,
		builder:   builder,
		disc:      discovery.New(store),
		verifier:  verifier,
		auditor:   auditor,
	}, nil
}

func secondsOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// Audit returns the audit store, nil when auditing is disabled.
func (p *pipeline) Audit() *audit.Store {
	return p.auditor
}

// Close releases the graph store and the audit database.
func (p *pipeline) Close(ctx context.Context) error {
	var first error
	if err := p.store.Close(ctx); err != nil {
		first = err
	}
	if p.auditor != nil {
		if err := p.auditor.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Process runs the full pipeline on one document. Stages execute strictly
// in order and a fatal stage failure short-circuits the rest; the run is
// never left in a mid-stage status.
func (p *pipeline) Process(ctx context.Context, documentPath string, opts ...ProcessOption) (*Report, error) {
	options := &processOptions{
		extractOpts: extract.Options{
			UsePreprocessing:   p.cfg.UsePreprocessing,
			EnhancementLevel:   p.cfg.EnhancementLevel,
			DomainHint:         p.cfg.DomainHint,
			SaveDebugArtifacts: p.cfg.SaveDebugArtifacts,
		},
		chunkSize:        p.cfg.ChunkSize,
		maxPatternLength: p.cfg.MaxPatternLength,
	}
	for _, o := range opts {
		o(options)
	}

	run := newRun(options.caller, documentPath)
	slog.Info("run: started", "run_id", run.ID, "document", documentPath)
	p.auditRun(run, nil)

	// Stage 1: extraction.
	run.Status = StatusExtracting
	stageStart := time.Now()
	extracted, err := p.extractor.Extract(ctx, run.ID, documentPath, options.extractOpts)
	if err != nil {
		run.record(StageExtracting, false, "", err, time.Since(stageStart))
		return p.fail(run, StageExtracting, ErrExtractionFailed, err, nil)
	}
	run.record(StageExtracting, true,
		fmt.Sprintf("%d chars, %d elements", len(extracted.Text), len(extracted.Elements)),
		nil, time.Since(stageStart))

	report := &Report{
		RunID:        run.ID,
		TextLength:   len(extracted.Text),
		ElementCount: len(extracted.Elements),
	}

	// Stage 2: graph construction.
	run.Status = StatusGraphing
	stageStart = time.Now()
	stats, err := p.builder.Build(ctx, run.ID, extracted.Elements, p.cfg.EnableChunking, options.chunkSize)
	if err != nil {
		run.record(StageGraphing, false, "", err, time.Since(stageStart))
		return p.fail(run, StageGraphing, ErrGraphConstructionFailed, err, report)
	}
	run.record(StageGraphing, true,
		fmt.Sprintf("%d nodes, %d relationships from %d chunks (%d failed)",
			stats.Nodes, stats.Relationships, stats.Chunks, stats.Failed),
		nil, time.Since(stageStart))

	// Stage 3: pattern discovery. Store queries are bounded like every
	// other collaborator call; a timeout is the stage's ordinary failure.
	run.Status = StatusDiscovering
	stageStart = time.Now()
	discCtx, cancelDisc := context.WithTimeout(ctx, secondsOr(p.cfg.StoreTimeoutSeconds, 30))
	patterns, err := p.disc.Discover(discCtx, options.maxPatternLength, p.cfg.MaxPatternsPerLength)
	cancelDisc()
	if err != nil {
		run.record(StageDiscovering, false, "", err, time.Since(stageStart))
		return p.fail(run, StageDiscovering, ErrPatternDiscoveryFailed, err, report)
	}
	questions := discovery.Questions(patterns)
	run.record(StageDiscovering, true,
		fmt.Sprintf("%d patterns, %d questions", len(patterns), len(questions)),
		nil, time.Since(stageStart))

	report.PatternCount = len(patterns)
	report.QuestionCount = len(questions)
	report.Questions = questions

	// Zero questions is a valid terminal outcome, not a failure.
	if len(questions) == 0 {
		run.Status = StatusCompleted
		report.Status = StatusCompleted
		report.NoHypotheses = true
		report.StageResults = run.StageResults
		report.ElapsedMs = time.Since(run.StartedAt).Milliseconds()
		slog.Info("run: completed with no hypotheses", "run_id", run.ID)
		p.auditRun(run, report)
		return report, nil
	}

	// Stage 4: verification. Individual question failures are recorded
	// inline, so the stage itself always succeeds.
	run.Status = StatusVerifying
	stageStart = time.Now()
	results := p.verifier.Verify(ctx, run.ID, questions)
	run.record(StageVerifying, true,
		fmt.Sprintf("%d questions verified", len(results)),
		nil, time.Since(stageStart))

	run.Status = StatusCompleted
	report.Status = StatusCompleted
	report.Results = results
	report.VerificationCount = len(results)
	report.StageResults = run.StageResults
	report.ElapsedMs = time.Since(run.StartedAt).Milliseconds()

	slog.Info("run: completed",
		"run_id", run.ID, "questions", len(questions),
		"elapsed", time.Since(run.StartedAt).Round(time.Millisecond))
	p.auditRun(run, report)
	return report, nil
}

// fail finalizes a run after a fatal stage error. The report is filled
// with everything known so far and the returned error carries the stage.
func (p *pipeline) fail(run *Run, stage Stage, sentinel, cause error, report *Report) (*Report, error) {
	run.Status = StatusFailed
	if report == nil {
		report = &Report{RunID: run.ID}
	}
	report.Status = StatusFailed
	report.Failure = &Failure{Stage: stage, Reason: cause.Error()}
	report.StageResults = run.StageResults
	report.ElapsedMs = time.Since(run.StartedAt).Milliseconds()

	slog.Error("run: failed", "run_id", run.ID, "stage", stage, "error", cause)
	p.auditRun(run, report)
	return report, newStageError(stage, sentinel, cause)
}

// auditRun persists the run's current state to the audit store. Auditing
// is best-effort and never affects the run outcome.
func (p *pipeline) auditRun(run *Run, report *Report) {
	if p.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), secondsOr(p.cfg.StoreTimeoutSeconds, 30))
	defer cancel()

	rec := audit.RunRecord{
		ID:           run.ID,
		Caller:       run.Caller,
		DocumentPath: run.DocumentPath,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		FinishedAt:   time.Now().UTC(),
	}
	if report != nil {
		rec.TextLength = report.TextLength
		rec.ElementCount = report.ElementCount
		rec.PatternCount = report.PatternCount
		rec.NoHypotheses = report.NoHypotheses
		rec.ElapsedMs = report.ElapsedMs
		if report.Failure != nil {
			rec.FailureStage = string(report.Failure.Stage)
			rec.FailureReason = report.Failure.Reason
		}
	}
	if err := p.auditor.RecordRun(ctx, rec); err != nil {
		slog.Warn("audit: recording run failed", "run_id", run.ID, "error", err)
		return
	}
	if report == nil {
		return
	}

	for _, sr := range run.StageResults {
		if err := p.auditor.RecordStageResult(ctx, run.ID, audit.StageRecord{
			Stage:     string(sr.Stage),
			OK:        sr.OK,
			Detail:    sr.Detail,
			Error:     sr.Error,
			ElapsedMs: sr.ElapsedMs,
		}); err != nil {
			slog.Warn("audit: recording stage result failed", "run_id", run.ID, "stage", sr.Stage, "error", err)
		}
	}

	if len(report.Results) > 0 {
		records := make([]audit.VerificationRecord, len(report.Results))
		for i, r := range report.Results {
			records[i] = audit.VerificationRecord{
				Position: i,
				Question: r.Question,
				Verdict:  string(r.Verdict),
				Evidence: r.Evidence,
				Error:    r.Error,
			}
		}
		if err := p.auditor.RecordVerifications(ctx, run.ID, records); err != nil {
			slog.Warn("audit: recording verifications failed", "run_id", run.ID, "error", err)
		}
	}
}
