// Package verify answers generated hypothesis questions against an
// external verification service and reports a verdict with supporting
// evidence for each.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mfalkner/chronograph/llm"
)

// Verdict classifies a verified question.
type Verdict string

const (
	VerdictSupported    Verdict = "supported"
	VerdictRefuted      Verdict = "refuted"
	VerdictInconclusive Verdict = "inconclusive"
)

// Client is the verification collaborator contract: one question in, a
// verdict plus evidence out.
type Client interface {
	Verify(ctx context.Context, question string) (Verdict, []string, error)
}

// verificationPrompt asks the backend to answer one question with a
// classified verdict and its sources.
const verificationPrompt = `You are a medical fact verification service.
Answer the following question using established medical knowledge.

Return a JSON object with exactly two keys:
  "verdict"  : one of "supported", "refuted", "inconclusive"
  "evidence" : array of strings, each one a source or fact supporting the verdict

Use "supported" when the statement is medically established, "refuted" when
it contradicts established knowledge, and "inconclusive" when no strong
answer exists. Do NOT include any text outside the JSON object.

QUESTION:
%s`

// LLMClient verifies questions against a completion backend.
type LLMClient struct {
	provider llm.Provider
}

// NewLLMClient creates a verification client on the given backend.
func NewLLMClient(provider llm.Provider) *LLMClient {
	return &LLMClient{provider: provider}
}

type verificationResponse struct {
	Verdict  string   `json:"verdict"`
	Evidence []string `json:"evidence"`
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

func (c *LLMClient) Verify(ctx context.Context, question string) (Verdict, []string, error) {
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(verificationPrompt, question)}},
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("verification call: %w", err)
	}

	raw := resp.Content
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var parsed verificationResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", nil, fmt.Errorf("decoding verification response: %w", err)
	}

	switch v := Verdict(strings.ToLower(strings.TrimSpace(parsed.Verdict))); v {
	case VerdictSupported, VerdictRefuted, VerdictInconclusive:
		return v, parsed.Evidence, nil
	default:
		// The call succeeded but the classification is unusable; treat it
		// as no strong answer rather than a failed item.
		slog.Warn("verify: unrecognized verdict, treating as inconclusive", "verdict", parsed.Verdict)
		return VerdictInconclusive, parsed.Evidence, nil
	}
}
