package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection parameters for a Neo4j instance.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements Store on a Neo4j database. ExecuteQuery manages
// session and transaction lifecycle per call, so no session outlives the
// operation that opened it.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a store connected to the given Neo4j instance.
func NewNeo4jStore(cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Neo4jStore{driver: driver, database: db}, nil
}

// Verify checks connectivity to the database.
func (s *Neo4jStore) Verify(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes one Cypher query with buffered results.
func (s *Neo4jStore) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, fmt.Errorf("executing neo4j query: %w", err)
	}
	return result, nil
}

// identRe restricts labels and relationship types, which cannot be passed
// as query parameters, to safe identifier characters.
var identRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeIdent(s string) string {
	s = identRe.ReplaceAllString(s, "_")
	if s == "" {
		s = "Entity"
	}
	return s
}

// AddGraphElements commits the set with MERGE semantics keyed on the
// deterministic node id, so overlapping commits from different runs merge.
func (s *Neo4jStore) AddGraphElements(ctx context.Context, set *Set) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("invalid graph element set: %w", err)
	}

	for _, n := range set.Nodes {
		query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", sanitizeIdent(n.Label))
		props := map[string]any{}
		for k, v := range n.Properties {
			props[k] = v
		}
		if _, err := s.run(ctx, query, map[string]any{"id": n.ID, "props": props}); err != nil {
			return fmt.Errorf("merging node %s: %w", n.ID, err)
		}
	}

	for _, r := range set.Relationships {
		query := fmt.Sprintf(
			"MATCH (a {id: $src}) MATCH (b {id: $tgt}) MERGE (a)-[r:%s]->(b) SET r += $props",
			sanitizeIdent(strings.ToUpper(r.Type)))
		props := map[string]any{}
		for k, v := range r.Properties {
			props[k] = v
		}
		if _, err := s.run(ctx, query, map[string]any{
			"src": r.SourceID, "tgt": r.TargetID, "props": props,
		}); err != nil {
			return fmt.Errorf("merging relationship %s->%s: %w", r.SourceID, r.TargetID, err)
		}
	}

	slog.Debug("graphstore: set committed",
		"nodes", len(set.Nodes), "relationships", len(set.Relationships))
	return nil
}

// patternQuery builds the per-length shape aggregation query. Shapes are
// grouped by the sequence of node labels and relationship types along the
// path and ordered by instance count descending.
func patternQuery(length int) string {
	var match, shape, sample strings.Builder
	match.WriteString("MATCH (n0)")
	for i := 0; i < length; i++ {
		fmt.Fprintf(&match, "-[r%d]->(n%d)", i, i+1)
	}
	for i := 0; i <= length; i++ {
		if i > 0 {
			shape.WriteString(", ")
			sample.WriteString(", ")
		}
		fmt.Fprintf(&shape, "labels(n%d)[0] AS l%d", i, i)
		fmt.Fprintf(&sample, "n%d.name", i)
	}
	for i := 0; i < length; i++ {
		fmt.Fprintf(&shape, ", type(r%d) AS t%d", i, i)
	}
	return fmt.Sprintf(
		"%s RETURN %s, count(*) AS support, collect([%s])[0] AS sample ORDER BY support DESC LIMIT $limit",
		match.String(), shape.String(), sample.String())
}

// QueryPatterns returns the recurring path shapes of the given hop length.
func (s *Neo4jStore) QueryPatterns(ctx context.Context, length, limit int) ([]PathPattern, error) {
	if length < 1 {
		return nil, fmt.Errorf("pattern length must be >= 1, got %d", length)
	}
	if limit <= 0 {
		limit = 10
	}

	result, err := s.run(ctx, patternQuery(length), map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}

	patterns := make([]PathPattern, 0, len(result.Records))
	for _, rec := range result.Records {
		p := PathPattern{Length: length}
		for i := 0; i <= length; i++ {
			v, _ := rec.Get(fmt.Sprintf("l%d", i))
			label, _ := v.(string)
			p.Labels = append(p.Labels, label)
		}
		for i := 0; i < length; i++ {
			v, _ := rec.Get(fmt.Sprintf("t%d", i))
			relType, _ := v.(string)
			p.RelTypes = append(p.RelTypes, relType)
		}
		if v, ok := rec.Get("support"); ok {
			if n, ok := v.(int64); ok {
				p.Support = n
			}
		}
		if v, ok := rec.Get("sample"); ok {
			if names, ok := v.([]any); ok {
				for _, nv := range names {
					name, _ := nv.(string)
					p.Sample = append(p.Sample, name)
				}
			}
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
