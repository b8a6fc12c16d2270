// Package discovery mines the committed graph for recurring multi-hop
// path shapes and renders them into natural-language questions for
// verification.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mfalkner/chronograph/graphstore"
)

// Pattern is a discovered recurring subgraph shape. Question is empty if
// rendering failed; such patterns are filtered out before verification.
type Pattern struct {
	PathLength   int      `json:"path_length"`
	SupportCount int64    `json:"support_count"`
	Labels       []string `json:"labels"`
	RelTypes     []string `json:"rel_types"`
	Sample       []string `json:"sample"`
	Question     string   `json:"question,omitempty"`
}

// Discoverer queries the graph store for patterns.
type Discoverer struct {
	store graphstore.Store
}

// New creates a Discoverer on the given store.
func New(store graphstore.Store) *Discoverer {
	return &Discoverer{store: store}
}

// Discover returns patterns of hop length 1..maxLength, at most
// maxPerLength per length, ordered by support descending with ties broken
// by shorter path length and then discovery order. Patterns that cannot
// be rendered into a question are dropped. Zero patterns is a valid
// outcome, not an error; an unreachable store is an error.
func (d *Discoverer) Discover(ctx context.Context, maxLength, maxPerLength int) ([]Pattern, error) {
	if maxLength < 1 {
		maxLength = 1
	}
	if maxPerLength <= 0 {
		maxPerLength = 5
	}

	start := time.Now()
	var patterns []Pattern
	for length := 1; length <= maxLength; length++ {
		shapes, err := d.store.QueryPatterns(ctx, length, maxPerLength)
		if err != nil {
			return nil, fmt.Errorf("querying patterns of length %d: %w", length, err)
		}
		for _, s := range shapes {
			p := Pattern{
				PathLength:   s.Length,
				SupportCount: s.Support,
				Labels:       s.Labels,
				RelTypes:     s.RelTypes,
				Sample:       s.Sample,
			}
			q, err := renderQuestion(p)
			if err != nil {
				// Untranslatable shape: drop the pattern, not the stage.
				slog.Debug("discovery: dropping unrenderable pattern",
					"labels", p.Labels, "rel_types", p.RelTypes, "error", err)
				continue
			}
			p.Question = q
			patterns = append(patterns, p)
		}
	}

	// Per-length queries are already support-ordered; merge lengths into
	// the final ranking.
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].SupportCount != patterns[j].SupportCount {
			return patterns[i].SupportCount > patterns[j].SupportCount
		}
		return patterns[i].PathLength < patterns[j].PathLength
	})

	slog.Info("discovery: patterns discovered",
		"count", len(patterns), "max_length", maxLength,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return patterns, nil
}

// Questions returns the rendered questions of the given patterns, in order.
func Questions(patterns []Pattern) []string {
	var qs []string
	for _, p := range patterns {
		if p.Question != "" {
			qs = append(qs, p.Question)
		}
	}
	return qs
}
