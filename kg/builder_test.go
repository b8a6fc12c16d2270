package kg

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfalkner/chronograph/extract"
	"github.com/mfalkner/chronograph/graphstore"
	"github.com/mfalkner/chronograph/llm"
)

// contentKeyedProvider answers per-chunk based on the text inside the
// prompt, so concurrent chunk ordering cannot affect the outcome.
type contentKeyedProvider struct {
	byMarker map[string]string // marker substring -> response
	fallback string
}

func (p *contentKeyedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := req.Messages[0].Content
	for marker, resp := range p.byMarker {
		if strings.Contains(content, marker) {
			return &llm.ChatResponse{Content: resp}, nil
		}
	}
	return &llm.ChatResponse{Content: p.fallback}, nil
}

func newTestBuilder(t *testing.T, provider llm.Provider) (*Builder, *graphstore.MemoryStore) {
	t.Helper()
	store := graphstore.NewMemoryStore()
	b := NewBuilder(store, NewAgent(provider), 2, 5*time.Second)
	return b, store
}

func elements(contents ...string) []extract.Element {
	var els []extract.Element
	for i, c := range contents {
		els = append(els, extract.Element{
			ID:      "run_1_" + string(rune('0'+i)),
			Content: c,
		})
	}
	return els
}

func TestBuildCommitsGraph(t *testing.T) {
	b, store := newTestBuilder(t, &contentKeyedProvider{fallback: feverResponse})

	stats, err := b.Build(context.Background(), "run_1", elements("Patient has fever and cough."), false, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Chunks != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if store.NodeCount() != 3 {
		t.Errorf("store has %d nodes, want 3", store.NodeCount())
	}
	if store.RelationshipCount() != 2 {
		t.Errorf("store has %d relationships, want 2", store.RelationshipCount())
	}
}

func TestBuildIdempotentCommit(t *testing.T) {
	b, store := newTestBuilder(t, &contentKeyedProvider{fallback: feverResponse})
	ctx := context.Background()
	els := elements("Patient has fever and cough.")

	if _, err := b.Build(ctx, "run_1", els, false, 0); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, err := b.Build(ctx, "run_2", els, false, 0); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	// Deterministic node identity makes the second pass merge, not duplicate.
	if store.NodeCount() != 3 {
		t.Errorf("store has %d nodes after re-run, want 3", store.NodeCount())
	}
	if store.RelationshipCount() != 2 {
		t.Errorf("store has %d relationships after re-run, want 2", store.RelationshipCount())
	}
}

func TestBuildPartialFailure(t *testing.T) {
	provider := &contentKeyedProvider{
		byMarker: map[string]string{"GARBLED": "not json at all"},
		fallback: feverResponse,
	}
	b, store := newTestBuilder(t, provider)

	stats, err := b.Build(context.Background(), "run_1",
		elements("Patient has fever.", "GARBLED SCAN SEGMENT"), false, 0)
	if err != nil {
		t.Fatalf("partial failure must not fail the build: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats.Failed = %d, want 1", stats.Failed)
	}
	if store.NodeCount() == 0 {
		t.Error("successful chunk was not committed")
	}
}

func TestBuildAllChunksFailed(t *testing.T) {
	provider := &contentKeyedProvider{fallback: "no json here"}
	b, _ := newTestBuilder(t, provider)

	_, err := b.Build(context.Background(), "run_1",
		elements("first chunk", "second chunk"), false, 0)
	if err == nil {
		t.Fatal("expected error when every chunk fails")
	}
	if !strings.Contains(err.Error(), "all 2 chunks failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

// blockingProvider signals when its first call starts, then holds every
// call until the context is cancelled.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBuildCancelledChunksCountAsFailed(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{})}
	store := graphstore.NewMemoryStore()
	b := NewBuilder(store, NewAgent(provider), 1, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-provider.started
		cancel()
	}()

	stats, err := b.Build(ctx, "run_1",
		elements("first chunk", "second chunk", "third chunk"), false, 0)
	if err == nil {
		t.Fatal("expected error when cancellation fails every chunk")
	}
	// Chunks cancelled while waiting for a worker slot count as failed
	// the same as chunks whose agent call failed.
	if stats.Failed != stats.Chunks {
		t.Errorf("stats.Failed = %d, want %d", stats.Failed, stats.Chunks)
	}
}

func TestBuildEmptyElements(t *testing.T) {
	b, _ := newTestBuilder(t, &contentKeyedProvider{fallback: feverResponse})
	stats, err := b.Build(context.Background(), "run_1", nil, false, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Chunks != 0 {
		t.Errorf("stats.Chunks = %d, want 0", stats.Chunks)
	}
}

func TestBuildEmptyGraphIsNotFailure(t *testing.T) {
	empty := `{"nodes": [], "relationships": []}`
	b, store := newTestBuilder(t, &contentKeyedProvider{fallback: empty})

	stats, err := b.Build(context.Background(), "run_1", elements("nothing clinical here"), false, 0)
	if err != nil {
		t.Fatalf("empty extraction must not fail the build: %v", err)
	}
	if stats.Failed != 0 {
		t.Errorf("stats.Failed = %d, want 0", stats.Failed)
	}
	if store.NodeCount() != 0 {
		t.Errorf("store has %d nodes, want 0", store.NodeCount())
	}
}

func TestRechunk(t *testing.T) {
	base := extract.Element{
		ID:      "run_1_0",
		Content: "first paragraph of notes.\n\nsecond paragraph of notes.",
	}

	t.Run("disabled passes through", func(t *testing.T) {
		out := rechunk([]extract.Element{base}, false, 10)
		if len(out) != 1 || out[0].ID != "run_1_0" {
			t.Fatalf("rechunk changed elements: %+v", out)
		}
	})

	t.Run("splits oversized elements", func(t *testing.T) {
		out := rechunk([]extract.Element{base}, true, 30)
		if len(out) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(out))
		}
		if out[0].ID != "run_1_0_p0" || out[1].ID != "run_1_0_p1" {
			t.Errorf("chunk IDs = %q, %q", out[0].ID, out[1].ID)
		}
	})

	t.Run("small elements keep their ID", func(t *testing.T) {
		out := rechunk([]extract.Element{base}, true, 1000)
		if len(out) != 1 || out[0].ID != "run_1_0" {
			t.Fatalf("unexpected rechunk result: %+v", out)
		}
	})
}
