// Package kg builds the knowledge graph: it runs the extraction agent
// over elements of document text and commits the resulting graph element
// sets to the graph store.
package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mfalkner/chronograph/extract"
	"github.com/mfalkner/chronograph/graphstore"
	"github.com/mfalkner/chronograph/llm"
)

// narrativePrompt asks the agent for a free-text description of the
// entities and relations in an element. Used when the caller wants raw
// narrative rather than structured output.
const narrativePrompt = `You are a clinical information extraction engine.
Read the following medical document text and describe, in plain prose, the
entities it mentions (patients, symptoms, conditions, medications,
procedures, findings) and how they relate to each other. Be concise and
only state what the text supports.

TEXT:
%s`

// graphPrompt asks the agent for a structured graph element set.
const graphPrompt = `You are a clinical knowledge graph extraction engine.
Given the following medical document text, extract entities and the
relationships between them.

NODE LABELS (use exactly these values):
- Patient    : the subject of the record
- Symptom    : a reported or observed symptom
- Condition  : a diagnosis or suspected condition
- Medication : a drug or treatment substance
- Procedure  : a test, operation, or intervention
- Finding    : a measurement or observation (lab value, vital sign)

RELATIONSHIP TYPES (use exactly these values):
- HAS_SYMPTOM     : patient exhibits symptom
- DIAGNOSED_WITH  : patient has condition
- TREATED_WITH    : patient or condition is treated with medication
- UNDERWENT       : patient underwent procedure
- INDICATES       : symptom or finding points to condition
- ASSOCIATED_WITH : any other supported association

Return a JSON object with exactly two keys:
  "nodes"         : array of {"name": string, "label": string, "properties": object}
  "relationships" : array of {"source": string, "target": string, "type": string}

Rules:
- Node names must be normalized to lowercase.
- Relationship source and target must be node names from the "nodes" array.
- Only include what is clearly supported by the text.
- If there is nothing to extract, return empty arrays.
- Do NOT include any text outside the JSON object.

EXAMPLES:

Input: "Patient has fever and cough. Started on paracetamol."
Output:
{"nodes": [{"name": "patient", "label": "Patient", "properties": {}}, {"name": "fever", "label": "Symptom", "properties": {}}, {"name": "cough", "label": "Symptom", "properties": {}}, {"name": "paracetamol", "label": "Medication", "properties": {}}], "relationships": [{"source": "patient", "target": "fever", "type": "HAS_SYMPTOM"}, {"source": "patient", "target": "cough", "type": "HAS_SYMPTOM"}, {"source": "patient", "target": "paracetamol", "type": "TREATED_WITH"}]}

Input: "Chest X-ray performed. Elevated WBC count of 14.2 suggests infection."
Output:
{"nodes": [{"name": "patient", "label": "Patient", "properties": {}}, {"name": "chest x-ray", "label": "Procedure", "properties": {}}, {"name": "wbc count", "label": "Finding", "properties": {"value": "14.2", "status": "elevated"}}, {"name": "infection", "label": "Condition", "properties": {}}], "relationships": [{"source": "patient", "target": "chest x-ray", "type": "UNDERWENT"}, {"source": "wbc count", "target": "infection", "type": "INDICATES"}]}

TEXT:
%s`

// Agent wraps a completion backend behind the extraction agent contract:
// one agent, two response shapes selected by a flag.
type Agent struct {
	provider llm.Provider
}

// NewAgent creates an extraction agent on the given backend. Which model
// backs the provider ("basic" vs "advanced" strategy) is a configuration
// concern; the contract is identical either way.
func NewAgent(provider llm.Provider) *Agent {
	return &Agent{provider: provider}
}

// Run invokes the agent on one element. With parseGraphElements false it
// returns the narrative text and a nil set; with true it returns a parsed
// and validated graph element set.
func (a *Agent) Run(ctx context.Context, el extract.Element, parseGraphElements bool) (string, *graphstore.Set, error) {
	if !parseGraphElements {
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(narrativePrompt, el.Content)}},
			Temperature: 0.4,
		})
		if err != nil {
			return "", nil, fmt.Errorf("agent narrative call: %w", err)
		}
		return resp.Content, nil, nil
	}

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(graphPrompt, el.Content)}},
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("agent graph call: %w", err)
	}

	set, err := parseGraphResponse(resp.Content, el.ID)
	if err != nil {
		return "", nil, fmt.Errorf("parsing agent response: %w", err)
	}
	return resp.Content, set, nil
}

// wireNode and wireRel are the JSON shapes the agent returns.
type wireNode struct {
	Name       string            `json:"name"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
}

type wireRel struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type wireResult struct {
	Nodes         []wireNode `json:"nodes"`
	Relationships []wireRel  `json:"relationships"`
}

// codeBlockRe strips markdown code fences from agent output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds the JSON object in a possibly noisy agent response.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// NodeID derives the deterministic node identity from its normalized name
// and label. Identity never depends on run-local counters, so repeated
// runs over the same document merge rather than duplicate.
func NodeID(name, label string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
	return strings.ToLower(strings.TrimSpace(label)) + ":" + norm
}

// parseGraphResponse converts the agent's JSON into a committed-ready set.
// Relationships whose endpoints were not returned as nodes are dropped (with
// a log line) so the set always satisfies the commit-time invariant.
func parseGraphResponse(raw, elementID string) (*graphstore.Set, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var result wireResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling graph elements: %w", err)
	}

	set := &graphstore.Set{}
	idByName := make(map[string]string, len(result.Nodes))
	seen := make(map[string]bool, len(result.Nodes))

	for _, n := range result.Nodes {
		name := strings.TrimSpace(strings.ToLower(n.Name))
		if name == "" {
			continue
		}
		label := strings.TrimSpace(n.Label)
		if label == "" {
			label = "Finding"
		}
		id := NodeID(name, label)
		idByName[name] = id
		if seen[id] {
			continue
		}
		seen[id] = true

		props := map[string]any{"name": name}
		for k, v := range n.Properties {
			props[k] = v
		}
		set.Nodes = append(set.Nodes, graphstore.Node{
			ID:         id,
			Label:      label,
			Properties: props,
		})
	}

	for _, r := range result.Relationships {
		src, srcOK := idByName[strings.TrimSpace(strings.ToLower(r.Source))]
		tgt, tgtOK := idByName[strings.TrimSpace(strings.ToLower(r.Target))]
		if !srcOK || !tgtOK {
			slog.Warn("kg: dropping relationship with unknown endpoint",
				"element_id", elementID, "source", r.Source, "target", r.Target, "type", r.Type)
			continue
		}
		relType := strings.ToUpper(strings.TrimSpace(r.Type))
		if relType == "" {
			relType = "ASSOCIATED_WITH"
		}
		set.Relationships = append(set.Relationships, graphstore.Relationship{
			SourceID: src,
			TargetID: tgt,
			Type:     relType,
		})
	}

	return set, nil
}
