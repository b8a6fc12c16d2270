// Package graphstore persists graph elements and answers structural
// pattern queries. The Neo4j implementation is the production store; the
// in-memory implementation backs tests and offline runs.
package graphstore

import (
	"context"
	"fmt"
)

// Node is a typed entity proposed for persistence. ID must be derived
// deterministically from stable identifying properties (normalized name +
// label), never from run-local counters, so repeated commits of the same
// entity merge rather than duplicate.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship is a typed, directed edge between two nodes.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Set is a batch of nodes and relationships committed together.
type Set struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Empty reports whether the set carries no elements.
func (s *Set) Empty() bool {
	return len(s.Nodes) == 0 && len(s.Relationships) == 0
}

// Validate checks the commit-time invariant: every relationship endpoint
// must reference a node present in this set.
func (s *Set) Validate() error {
	ids := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %q has empty id", n.Label)
		}
		ids[n.ID] = true
	}
	for _, r := range s.Relationships {
		if !ids[r.SourceID] {
			return fmt.Errorf("relationship %s: source %q not in set", r.Type, r.SourceID)
		}
		if !ids[r.TargetID] {
			return fmt.Errorf("relationship %s: target %q not in set", r.Type, r.TargetID)
		}
	}
	return nil
}

// PathPattern is one recurring path shape of a fixed hop length, with the
// number of matching instances and a representative instance's node names.
type PathPattern struct {
	Length   int      `json:"length"`
	Labels   []string `json:"labels"`    // node labels along the shape, length+1 entries
	RelTypes []string `json:"rel_types"` // relationship types along the shape, length entries
	Support  int64    `json:"support"`
	Sample   []string `json:"sample"` // node names of one matching instance
}

// Store is the graph store collaborator contract. Implementations must
// scope any session they open to the call and release it on all paths.
type Store interface {
	// AddGraphElements commits a set with merge semantics: committing the
	// same set twice yields the same queryable graph as committing it once.
	AddGraphElements(ctx context.Context, set *Set) error

	// QueryPatterns returns the path shapes of exactly the given hop
	// length, ordered by support descending, at most limit of them.
	QueryPatterns(ctx context.Context, length, limit int) ([]PathPattern, error)

	// Verify checks connectivity to the store.
	Verify(ctx context.Context) error

	Close(ctx context.Context) error
}
