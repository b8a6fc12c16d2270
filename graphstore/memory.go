package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and offline runs. It
// applies the same merge semantics as the Neo4j store and serializes
// concurrent writes with a mutex.
type MemoryStore struct {
	mu        sync.Mutex
	nodes     map[string]Node
	nodeOrder []string // insertion order, for deterministic traversal
	rels      map[string]Relationship
	relOrder  []string
	outgoing  map[string][]string // node id -> rel keys
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[string]Node),
		rels:     make(map[string]Relationship),
		outgoing: make(map[string][]string),
	}
}

func (s *MemoryStore) Verify(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func relKey(r Relationship) string {
	return r.SourceID + "|" + strings.ToUpper(r.Type) + "|" + r.TargetID
}

// AddGraphElements merges the set into the store. Nodes merge on id,
// relationships on (source, type, target).
func (s *MemoryStore) AddGraphElements(ctx context.Context, set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range set.Nodes {
		existing, ok := s.nodes[n.ID]
		if !ok {
			existing = Node{ID: n.ID, Label: n.Label, Properties: map[string]any{}}
			s.nodeOrder = append(s.nodeOrder, n.ID)
		}
		for k, v := range n.Properties {
			if existing.Properties == nil {
				existing.Properties = map[string]any{}
			}
			existing.Properties[k] = v
		}
		s.nodes[n.ID] = existing
	}

	for _, r := range set.Relationships {
		key := relKey(r)
		if _, ok := s.rels[key]; !ok {
			s.rels[key] = r
			s.relOrder = append(s.relOrder, key)
			s.outgoing[r.SourceID] = append(s.outgoing[r.SourceID], key)
		}
	}
	return nil
}

// NodeCount returns the number of distinct nodes. Diagnostic accessor.
func (s *MemoryStore) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// RelationshipCount returns the number of distinct relationships.
func (s *MemoryStore) RelationshipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rels)
}

// shapeKey identifies a path shape by its label and type sequence.
func shapeKey(labels, relTypes []string) string {
	return strings.Join(labels, ">") + "//" + strings.Join(relTypes, ">")
}

// QueryPatterns enumerates simple paths of exactly the given length and
// groups them by shape. Results are ordered by support descending, ties
// broken by first-discovery order.
func (s *MemoryStore) QueryPatterns(ctx context.Context, length, limit int) ([]PathPattern, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type group struct {
		pattern PathPattern
		order   int
	}
	groups := make(map[string]*group)
	discovered := 0

	var walk func(path []string, relTypes []string)
	walk = func(path []string, relTypes []string) {
		if len(relTypes) == length {
			labels := make([]string, len(path))
			names := make([]string, len(path))
			for i, id := range path {
				n := s.nodes[id]
				labels[i] = n.Label
				names[i] = nodeName(n)
			}
			key := shapeKey(labels, relTypes)
			g, ok := groups[key]
			if !ok {
				g = &group{
					pattern: PathPattern{
						Length:   length,
						Labels:   labels,
						RelTypes: relTypes,
						Sample:   names,
					},
					order: discovered,
				}
				discovered++
				groups[key] = g
			}
			g.pattern.Support++
			return
		}

		last := path[len(path)-1]
		for _, key := range s.outgoing[last] {
			r := s.rels[key]
			if containsString(path, r.TargetID) {
				continue // simple paths only
			}
			walk(append(append([]string{}, path...), r.TargetID),
				append(append([]string{}, relTypes...), strings.ToUpper(r.Type)))
		}
	}

	for _, id := range s.nodeOrder {
		walk([]string{id}, nil)
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].pattern.Support != ordered[j].pattern.Support {
			return ordered[i].pattern.Support > ordered[j].pattern.Support
		}
		return ordered[i].order < ordered[j].order
	})

	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	patterns := make([]PathPattern, len(ordered))
	for i, g := range ordered {
		patterns[i] = g.pattern
	}
	return patterns, nil
}

func nodeName(n Node) string {
	if v, ok := n.Properties["name"]; ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return n.ID
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
