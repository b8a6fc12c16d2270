package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/mfalkner/chronograph/llm"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.response}, nil
}

func TestLLMClientVerify(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		wantVerdict Verdict
		wantErr     bool
	}{
		{
			name:        "supported",
			response:    `{"verdict": "supported", "evidence": ["fever is a common flu symptom"]}`,
			wantVerdict: VerdictSupported,
		},
		{
			name:        "refuted",
			response:    `{"verdict": "refuted", "evidence": []}`,
			wantVerdict: VerdictRefuted,
		},
		{
			name:        "fenced response",
			response:    "```json\n{\"verdict\": \"inconclusive\", \"evidence\": []}\n```",
			wantVerdict: VerdictInconclusive,
		},
		{
			name:        "trailing prose after the object",
			response:    `{"verdict": "supported", "evidence": ["textbook"]} I hope this helps!`,
			wantVerdict: VerdictSupported,
		},
		{
			name:        "prose around the object",
			response:    `Here is my assessment: {"verdict": "refuted", "evidence": []} Let me know.`,
			wantVerdict: VerdictRefuted,
		},
		{
			name:        "mixed case verdict",
			response:    `{"verdict": "Supported", "evidence": []}`,
			wantVerdict: VerdictSupported,
		},
		{
			name:        "unrecognized verdict falls back to inconclusive",
			response:    `{"verdict": "probably", "evidence": ["weak source"]}`,
			wantVerdict: VerdictInconclusive,
		},
		{
			name:     "not json",
			response: "I cannot answer that.",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClient(&fakeProvider{response: tt.response})
			verdict, _, err := c.Verify(context.Background(), "Is fever a flu symptom?")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got verdict %q", verdict)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if verdict != tt.wantVerdict {
				t.Errorf("verdict = %q, want %q", verdict, tt.wantVerdict)
			}
		})
	}
}

func TestLLMClientVerifyBackendError(t *testing.T) {
	c := NewLLMClient(&fakeProvider{err: errors.New("connection refused")})
	_, _, err := c.Verify(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestLLMClientVerifyEvidence(t *testing.T) {
	c := NewLLMClient(&fakeProvider{
		response: `{"verdict": "supported", "evidence": ["source one", "source two"]}`,
	})
	_, evidence, err := c.Verify(context.Background(), "q")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(evidence) != 2 || evidence[0] != "source one" {
		t.Errorf("evidence = %v", evidence)
	}
}
