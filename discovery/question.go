package discovery

import (
	"fmt"
	"strings"
)

// relPhrases maps relationship types to the verb phrase used in rendered
// questions. A relationship type outside this table makes the pattern
// untranslatable.
var relPhrases = map[string]string{
	"HAS_SYMPTOM":     "presents with",
	"DIAGNOSED_WITH":  "is diagnosed with",
	"TREATED_WITH":    "is treated with",
	"UNDERWENT":       "underwent",
	"INDICATES":       "indicates",
	"ASSOCIATED_WITH": "is associated with",
}

// renderQuestion turns a pattern into a natural-language question using
// the names of a representative instance. It fails (and the caller drops
// the pattern) when the sample is incomplete or a relationship type has
// no phrasing.
func renderQuestion(p Pattern) (string, error) {
	if len(p.Sample) != p.PathLength+1 {
		return "", fmt.Errorf("sample has %d names, want %d", len(p.Sample), p.PathLength+1)
	}
	if len(p.RelTypes) != p.PathLength {
		return "", fmt.Errorf("pattern has %d relation types, want %d", len(p.RelTypes), p.PathLength)
	}
	for i, name := range p.Sample {
		if strings.TrimSpace(name) == "" {
			return "", fmt.Errorf("sample name %d is empty", i)
		}
	}

	var clauses []string
	for i, relType := range p.RelTypes {
		phrase, ok := relPhrases[strings.ToUpper(relType)]
		if !ok {
			return "", fmt.Errorf("no phrasing for relationship type %q", relType)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", p.Sample[i], phrase, p.Sample[i+1]))
	}

	if len(clauses) == 1 {
		return fmt.Sprintf("Is it medically established that %s?", clauses[0]), nil
	}
	return fmt.Sprintf("Is it medically established that %s, and that %s?",
		strings.Join(clauses[:len(clauses)-1], ", that "),
		clauses[len(clauses)-1]), nil
}
