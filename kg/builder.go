package kg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfalkner/chronograph/extract"
	"github.com/mfalkner/chronograph/graphstore"
)

// defaultConcurrency bounds parallel agent calls when none is configured.
const defaultConcurrency = 4

// defaultChunkTimeout caps one chunk's agent call plus commit.
const defaultChunkTimeout = 90 * time.Second

// Stats summarizes a graph construction pass.
type Stats struct {
	Chunks        int // chunks submitted to the agent
	Failed        int // chunks whose agent call or commit failed
	Nodes         int // nodes committed across all chunks
	Relationships int // relationships committed across all chunks
}

// Builder runs the extraction agent over elements and commits the results.
type Builder struct {
	store        graphstore.Store
	agent        *Agent
	concurrency  int
	chunkTimeout time.Duration
}

// NewBuilder creates a graph builder.
func NewBuilder(store graphstore.Store, agent *Agent, concurrency int, chunkTimeout time.Duration) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if chunkTimeout <= 0 {
		chunkTimeout = defaultChunkTimeout
	}
	return &Builder{
		store:        store,
		agent:        agent,
		concurrency:  concurrency,
		chunkTimeout: chunkTimeout,
	}
}

// Build extracts graph elements from every element (optionally re-chunked
// to chunkSize characters) and commits them. A chunk whose agent call
// fails is skipped and counted; the pass succeeds as long as at least one
// chunk was processed without error. All chunks failing is an error.
//
// A document that yields chunks but no entities is a valid empty-graph
// result, not a failure.
func (b *Builder) Build(ctx context.Context, runID string, elements []extract.Element, chunking bool, chunkSize int) (*Stats, error) {
	chunks := rechunk(elements, chunking, chunkSize)
	stats := &Stats{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return stats, nil
	}

	slog.Info("kg: processing chunks",
		"run_id", runID, "elements", len(elements), "chunks", len(chunks),
		"concurrency", b.concurrency)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		sem   = make(chan struct{}, b.concurrency)
		errs  []string
		start = time.Now()
	)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(el extract.Element) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, fmt.Sprintf("chunk %s: %v", el.ID, ctx.Err()))
				stats.Failed++
				mu.Unlock()
				return
			}

			chunkCtx, cancel := context.WithTimeout(ctx, b.chunkTimeout)
			defer cancel()

			chunkStart := time.Now()
			nodes, rels, err := b.processChunk(chunkCtx, el)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("kg: chunk failed",
					"run_id", runID, "element_id", el.ID, "error", err,
					"elapsed", time.Since(chunkStart).Round(time.Millisecond))
				errs = append(errs, fmt.Sprintf("chunk %s: %v", el.ID, err))
				stats.Failed++
				return
			}
			stats.Nodes += nodes
			stats.Relationships += rels
			slog.Info("kg: chunk committed",
				"run_id", runID, "element_id", el.ID,
				"nodes", nodes, "relationships", rels,
				"elapsed", time.Since(chunkStart).Round(time.Millisecond))
		}(chunk)
	}

	wg.Wait()

	if len(errs) == len(chunks) {
		return stats, fmt.Errorf("all %d chunks failed; first error: %s", len(chunks), errs[0])
	}
	if len(errs) > 0 {
		slog.Warn("kg: build completed with partial failures",
			"run_id", runID, "succeeded", len(chunks)-len(errs), "failed", len(errs),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	return stats, nil
}

// processChunk runs the agent on one chunk and commits the result.
func (b *Builder) processChunk(ctx context.Context, el extract.Element) (nodes, rels int, err error) {
	_, set, err := b.agent.Run(ctx, el, true)
	if err != nil {
		return 0, 0, err
	}
	if set == nil || set.Empty() {
		return 0, 0, nil
	}
	if err := b.store.AddGraphElements(ctx, set); err != nil {
		return 0, 0, fmt.Errorf("committing graph elements: %w", err)
	}
	return len(set.Nodes), len(set.Relationships), nil
}

// rechunk splits element contents into agent-sized chunks. With chunking
// disabled (or a non-positive size) elements pass through unchanged.
// Derived chunk IDs extend the element ID with a part index, preserving
// provenance.
func rechunk(elements []extract.Element, chunking bool, chunkSize int) []extract.Element {
	if !chunking || chunkSize <= 0 {
		return elements
	}

	var out []extract.Element
	for _, el := range elements {
		pieces := extract.Split(el.Content, chunkSize)
		if len(pieces) <= 1 {
			out = append(out, el)
			continue
		}
		for i, p := range pieces {
			out = append(out, extract.Element{
				ID:         fmt.Sprintf("%s_p%d", el.ID, i),
				Content:    p,
				Provenance: el.Provenance,
			})
		}
	}
	return out
}
