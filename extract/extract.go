// Package extract turns a raw document (image, PDF, spreadsheet, or plain
// text) into extracted text and a sequence of Elements for downstream
// graph construction. Image formats are delegated to an external OCR
// collaborator; document formats are read natively.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options enumerates the recognized extraction knobs.
type Options struct {
	UsePreprocessing   bool   `json:"use_preprocessing"`
	EnhancementLevel   string `json:"enhancement_level"` // "light" or "aggressive"
	DomainHint         string `json:"domain_hint"`
	SaveDebugArtifacts bool   `json:"save_debug_artifacts"`
}

// Result is the output of a successful extraction.
type Result struct {
	Text     string
	Elements []Element
}

// Config configures an Extractor.
type Config struct {
	OCRBaseURL      string
	OCRAPIKey       string
	OCRTimeout      time.Duration
	MaxElementChars int
	DebugDir        string
}

// Reader extracts plain text from one or more document formats.
type Reader interface {
	Text(ctx context.Context, path string) (string, error)
	Formats() []string
}

// Extractor routes documents to format readers and chunks the extracted
// text into Elements.
type Extractor struct {
	cfg     Config
	readers map[string]Reader
}

// New creates an Extractor with the built-in readers registered. Image
// formats are registered only when an OCR endpoint is configured.
func New(cfg Config) *Extractor {
	if cfg.MaxElementChars <= 0 {
		cfg.MaxElementChars = 24000
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = 120 * time.Second
	}

	e := &Extractor{cfg: cfg, readers: make(map[string]Reader)}
	for _, r := range []Reader{&TextReader{}, &PDFReader{}, &XLSXReader{}} {
		e.Register(r)
	}
	if cfg.OCRBaseURL != "" {
		e.Register(NewOCRReader(OCRConfig{
			BaseURL: cfg.OCRBaseURL,
			APIKey:  cfg.OCRAPIKey,
			Timeout: cfg.OCRTimeout,
		}))
	}
	return e
}

// Register adds a reader for each of its supported formats, replacing any
// previous registration.
func (e *Extractor) Register(r Reader) {
	for _, f := range r.Formats() {
		e.readers[f] = r
	}
}

// Extract reads the document at path and returns the concatenated text
// plus the Elements derived from chunking it. An unreadable file or empty
// extraction result is an error; a failed debug-artifact write is not.
func (e *Extractor) Extract(ctx context.Context, runID, path string, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source file unreadable: %w", err)
	}
	if info.IsDir() {
		return nil, errors.New("source path is a directory")
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	reader, ok := e.readers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported document format: %s", format)
	}

	start := time.Now()
	var text string
	if ocr, isOCR := reader.(*OCRReader); isOCR {
		ocrCtx, cancel := context.WithTimeout(ctx, e.cfg.OCRTimeout)
		defer cancel()
		text, err = ocr.Recognize(ocrCtx, path, opts)
	} else {
		text, err = reader.Text(ctx, path)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", format, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("no usable text extracted")
	}

	elements := buildElements(runID, path, text, e.cfg.MaxElementChars)
	slog.Info("extract: document extracted",
		"run_id", runID, "format", format, "chars", len(text),
		"elements", len(elements), "elapsed", time.Since(start).Round(time.Millisecond))

	if opts.SaveDebugArtifacts {
		e.writeDebugArtifact(runID, text)
	}

	return &Result{Text: text, Elements: elements}, nil
}

// writeDebugArtifact persists the extracted text for inspection. This is
// best-effort: a write failure is logged and never masks a successful
// extraction.
func (e *Extractor) writeDebugArtifact(runID, text string) {
	if e.cfg.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(e.cfg.DebugDir, 0o755); err != nil {
		slog.Warn("extract: debug dir creation failed", "dir", e.cfg.DebugDir, "error", err)
		return
	}
	path := filepath.Join(e.cfg.DebugDir, runID+"_text.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		slog.Warn("extract: debug artifact write failed", "path", path, "error", err)
	}
}
