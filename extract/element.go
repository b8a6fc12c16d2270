package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Provenance references the source a unit of text came from.
type Provenance struct {
	Document string `json:"document"` // source document path
	Sequence int    `json:"sequence"` // position within the extraction order
}

// Element is a unit of extracted document text with stable identity.
// Elements are created by extraction and never mutated afterwards.
type Element struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Provenance Provenance `json:"provenance"`
}

// buildElements splits extracted text into elements no larger than maxChars.
// Splits happen at paragraph boundaries, then sentence boundaries; a split
// inside a sentence only happens when a single sentence exceeds maxChars.
// Element IDs are derived from the run id plus a sequence index.
func buildElements(runID, document, text string, maxChars int) []Element {
	if maxChars <= 0 {
		maxChars = 24000
	}

	pieces := Split(text, maxChars)
	elements := make([]Element, 0, len(pieces))
	for i, p := range pieces {
		elements = append(elements, Element{
			ID:      fmt.Sprintf("%s_%d", runID, i),
			Content: p,
			Provenance: Provenance{
				Document: document,
				Sequence: i,
			},
		})
	}
	return elements
}

// Split breaks text into pieces of at most maxChars, preferring paragraph
// and sentence boundaries. Graph construction reuses it for re-chunking
// elements to the agent's chunk size.
func Split(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
	}

	for _, para := range splitParagraphs(text) {
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if len(para) <= maxChars {
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(para)
			continue
		}

		// Paragraph alone exceeds the budget: fall back to sentences.
		flush()
		for _, sent := range splitSentences(para) {
			if current.Len() > 0 && current.Len()+len(sent)+1 > maxChars {
				flush()
			}
			if len(sent) > maxChars {
				// A single oversized sentence is cut hard, backing the cut
				// off to a rune boundary so no piece ends mid-character.
				flush()
				for len(sent) > maxChars {
					cut := maxChars
					for cut > 0 && !utf8.RuneStart(sent[cut]) {
						cut--
					}
					if cut == 0 {
						cut = maxChars
					}
					pieces = append(pieces, strings.TrimSpace(sent[:cut]))
					sent = sent[cut:]
				}
				if s := strings.TrimSpace(sent); s != "" {
					current.WriteString(s)
				}
				continue
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sent)
		}
		flush()
	}
	flush()

	return pieces
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	var paras []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// sentenceEnders are the characters treated as sentence terminators.
const sentenceEnders = ".!?"

// splitSentences splits a paragraph into sentences on terminator + space.
// Abbreviation handling is deliberately minimal; callers only need splits
// to be plausible boundaries, not linguistically exact.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if strings.ContainsRune(sentenceEnders, rune(text[i])) && text[i+1] == ' ' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
