package graphstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func feverSet() *Set {
	return &Set{
		Nodes: []Node{
			{ID: "patient:patient", Label: "Patient", Properties: map[string]any{"name": "patient"}},
			{ID: "symptom:fever", Label: "Symptom", Properties: map[string]any{"name": "fever"}},
			{ID: "symptom:cough", Label: "Symptom", Properties: map[string]any{"name": "cough"}},
		},
		Relationships: []Relationship{
			{SourceID: "patient:patient", TargetID: "symptom:fever", Type: "HAS_SYMPTOM"},
			{SourceID: "patient:patient", TargetID: "symptom:cough", Type: "HAS_SYMPTOM"},
		},
	}
}

func TestMemoryStoreMergeSemantics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.AddGraphElements(ctx, feverSet()); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := s.AddGraphElements(ctx, feverSet()); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	if got := s.NodeCount(); got != 3 {
		t.Errorf("NodeCount = %d, want 3", got)
	}
	if got := s.RelationshipCount(); got != 2 {
		t.Errorf("RelationshipCount = %d, want 2", got)
	}
}

func TestMemoryStoreMergesProperties(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &Set{Nodes: []Node{{ID: "finding:wbc count", Label: "Finding",
		Properties: map[string]any{"name": "wbc count"}}}}
	second := &Set{Nodes: []Node{{ID: "finding:wbc count", Label: "Finding",
		Properties: map[string]any{"name": "wbc count", "value": "14.2"}}}}

	if err := s.AddGraphElements(ctx, first); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := s.AddGraphElements(ctx, second); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	if s.NodeCount() != 1 {
		t.Fatalf("NodeCount = %d, want 1", s.NodeCount())
	}
	if v := s.nodes["finding:wbc count"].Properties["value"]; v != "14.2" {
		t.Errorf("merged property value = %v, want 14.2", v)
	}
}

func TestMemoryStoreRejectsInvalidSet(t *testing.T) {
	s := NewMemoryStore()
	bad := &Set{
		Nodes:         []Node{{ID: "symptom:fever", Label: "Symptom"}},
		Relationships: []Relationship{{SourceID: "symptom:fever", TargetID: "ghost", Type: "INDICATES"}},
	}
	if err := s.AddGraphElements(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if s.NodeCount() != 0 {
		t.Error("invalid set partially committed")
	}
}

func TestMemoryStoreQueryPatterns(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.AddGraphElements(ctx, feverSet()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	patterns, err := s.QueryPatterns(ctx, 1, 10)
	if err != nil {
		t.Fatalf("QueryPatterns: %v", err)
	}
	// Both relationships share the Patient-HAS_SYMPTOM->Symptom shape.
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d: %+v", len(patterns), patterns)
	}
	p := patterns[0]
	if p.Support != 2 {
		t.Errorf("Support = %d, want 2", p.Support)
	}
	if p.Labels[0] != "Patient" || p.Labels[1] != "Symptom" {
		t.Errorf("Labels = %v", p.Labels)
	}
	if p.RelTypes[0] != "HAS_SYMPTOM" {
		t.Errorf("RelTypes = %v", p.RelTypes)
	}
	// The sample names come from the first discovered instance.
	if p.Sample[0] != "patient" || p.Sample[1] != "fever" {
		t.Errorf("Sample = %v", p.Sample)
	}
}

func TestMemoryStoreQueryPatternsOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	set := &Set{
		Nodes: []Node{
			{ID: "patient:patient", Label: "Patient", Properties: map[string]any{"name": "patient"}},
			{ID: "symptom:fever", Label: "Symptom", Properties: map[string]any{"name": "fever"}},
			{ID: "symptom:cough", Label: "Symptom", Properties: map[string]any{"name": "cough"}},
			{ID: "condition:flu", Label: "Condition", Properties: map[string]any{"name": "flu"}},
		},
		Relationships: []Relationship{
			{SourceID: "patient:patient", TargetID: "symptom:fever", Type: "HAS_SYMPTOM"},
			{SourceID: "patient:patient", TargetID: "symptom:cough", Type: "HAS_SYMPTOM"},
			{SourceID: "patient:patient", TargetID: "condition:flu", Type: "DIAGNOSED_WITH"},
		},
	}
	if err := s.AddGraphElements(ctx, set); err != nil {
		t.Fatalf("commit: %v", err)
	}

	patterns, err := s.QueryPatterns(ctx, 1, 10)
	if err != nil {
		t.Fatalf("QueryPatterns: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].RelTypes[0] != "HAS_SYMPTOM" || patterns[0].Support != 2 {
		t.Errorf("highest-support pattern first, got %+v", patterns[0])
	}
	if patterns[1].RelTypes[0] != "DIAGNOSED_WITH" || patterns[1].Support != 1 {
		t.Errorf("second pattern = %+v", patterns[1])
	}
}

func TestMemoryStoreQueryPatternsMultiHop(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	set := &Set{
		Nodes: []Node{
			{ID: "patient:patient", Label: "Patient", Properties: map[string]any{"name": "patient"}},
			{ID: "symptom:fever", Label: "Symptom", Properties: map[string]any{"name": "fever"}},
			{ID: "condition:infection", Label: "Condition", Properties: map[string]any{"name": "infection"}},
		},
		Relationships: []Relationship{
			{SourceID: "patient:patient", TargetID: "symptom:fever", Type: "HAS_SYMPTOM"},
			{SourceID: "symptom:fever", TargetID: "condition:infection", Type: "INDICATES"},
		},
	}
	if err := s.AddGraphElements(ctx, set); err != nil {
		t.Fatalf("commit: %v", err)
	}

	patterns, err := s.QueryPatterns(ctx, 2, 10)
	if err != nil {
		t.Fatalf("QueryPatterns: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 two-hop pattern, got %d", len(patterns))
	}
	want := PathPattern{
		Length:   2,
		Labels:   []string{"Patient", "Symptom", "Condition"},
		RelTypes: []string{"HAS_SYMPTOM", "INDICATES"},
		Support:  1,
		Sample:   []string{"patient", "fever", "infection"},
	}
	if diff := cmp.Diff(want, patterns[0]); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreQueryPatternsEmptyGraph(t *testing.T) {
	s := NewMemoryStore()
	patterns, err := s.QueryPatterns(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("QueryPatterns: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("expected no patterns, got %d", len(patterns))
	}
}

func TestMemoryStoreQueryPatternsLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	set := &Set{
		Nodes: []Node{
			{ID: "patient:patient", Label: "Patient", Properties: map[string]any{"name": "patient"}},
			{ID: "symptom:fever", Label: "Symptom", Properties: map[string]any{"name": "fever"}},
			{ID: "condition:flu", Label: "Condition", Properties: map[string]any{"name": "flu"}},
			{ID: "medication:paracetamol", Label: "Medication", Properties: map[string]any{"name": "paracetamol"}},
		},
		Relationships: []Relationship{
			{SourceID: "patient:patient", TargetID: "symptom:fever", Type: "HAS_SYMPTOM"},
			{SourceID: "patient:patient", TargetID: "condition:flu", Type: "DIAGNOSED_WITH"},
			{SourceID: "patient:patient", TargetID: "medication:paracetamol", Type: "TREATED_WITH"},
		},
	}
	if err := s.AddGraphElements(ctx, set); err != nil {
		t.Fatalf("commit: %v", err)
	}

	patterns, err := s.QueryPatterns(ctx, 1, 2)
	if err != nil {
		t.Fatalf("QueryPatterns: %v", err)
	}
	if len(patterns) != 2 {
		t.Errorf("limit ignored: got %d patterns", len(patterns))
	}
}
