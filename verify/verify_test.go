package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient answers by question content and can stall or fail selected
// questions. Answers are keyed on substrings so completion order cannot
// matter.
type fakeClient struct {
	mu       sync.Mutex
	failFor  string        // questions containing this fail
	stallFor string        // questions containing this sleep first
	stall    time.Duration // how long to stall
	calls    []string
}

func (f *fakeClient) Verify(ctx context.Context, question string) (Verdict, []string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, question)
	f.mu.Unlock()

	if f.stallFor != "" && strings.Contains(question, f.stallFor) {
		select {
		case <-time.After(f.stall):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	if f.failFor != "" && strings.Contains(question, f.failFor) {
		return "", nil, errors.New("backend unavailable")
	}
	return VerdictSupported, []string{"evidence for: " + question}, nil
}

func questions(n int) []string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf("Is it medically established that fact %d holds?", i)
	}
	return qs
}

func TestVerifyPreservesOrder(t *testing.T) {
	// Stall the first question so later ones finish before it.
	client := &fakeClient{stallFor: "fact 0", stall: 50 * time.Millisecond}
	v := New(client, "", 4, time.Second)

	qs := questions(6)
	results := v.Verify(context.Background(), "run_1", qs)

	if len(results) != len(qs) {
		t.Fatalf("got %d results, want %d", len(results), len(qs))
	}
	for i, r := range results {
		if r.Question != qs[i] {
			t.Errorf("result %d question = %q, want %q", i, r.Question, qs[i])
		}
		if r.Verdict != VerdictSupported {
			t.Errorf("result %d verdict = %q", i, r.Verdict)
		}
	}
}

func TestVerifyIsolatesFailures(t *testing.T) {
	client := &fakeClient{failFor: "fact 2"}
	v := New(client, "", 2, time.Second)

	results := v.Verify(context.Background(), "run_1", questions(4))

	for i, r := range results {
		if i == 2 {
			if r.Error == "" {
				t.Error("failed question has no error")
			}
			if r.Verdict != "" {
				t.Errorf("failed question has verdict %q", r.Verdict)
			}
			continue
		}
		if r.Error != "" {
			t.Errorf("result %d unexpectedly failed: %s", i, r.Error)
		}
		if r.Verdict != VerdictSupported {
			t.Errorf("result %d verdict = %q", i, r.Verdict)
		}
	}
}

func TestVerifyEmptyBatch(t *testing.T) {
	v := New(&fakeClient{}, "", 2, time.Second)
	results := v.Verify(context.Background(), "run_1", nil)
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestVerifyCancelledContextFillsAllEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(&fakeClient{}, "", 2, time.Second)
	qs := questions(5)
	results := v.Verify(ctx, "run_1", qs)

	if len(results) != len(qs) {
		t.Fatalf("got %d results, want %d", len(results), len(qs))
	}
	for i, r := range results {
		if r.Question != qs[i] {
			t.Errorf("result %d question = %q", i, r.Question)
		}
		if r.Verdict == "" && r.Error == "" {
			t.Errorf("result %d has neither verdict nor error", i)
		}
	}
}

func TestVerifyWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	v := New(&fakeClient{}, dir, 2, time.Second)

	results := v.Verify(context.Background(), "run_art", questions(2))
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	data, err := os.ReadFile(filepath.Join(dir, "run_art_results.json"))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	var artifact runArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatalf("artifact not valid JSON: %v", err)
	}
	if artifact.RunID != "run_art" || len(artifact.Results) != 2 {
		t.Errorf("artifact = %+v", artifact)
	}
}

func TestVerifyArtifactFailureIsNonFatal(t *testing.T) {
	// A file in place of the output dir makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	v := New(&fakeClient{}, blocker, 2, time.Second)
	results := v.Verify(context.Background(), "run_1", questions(2))
	for i, r := range results {
		if r.Verdict != VerdictSupported {
			t.Errorf("result %d verdict = %q despite artifact failure", i, r.Verdict)
		}
	}
}
