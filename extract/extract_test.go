package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestExtractText(t *testing.T) {
	path := writeTestFile(t, "note.txt", "Patient has fever and cough. Started on paracetamol.")
	e := New(Config{})

	res, err := e.Extract(context.Background(), "run_1", path, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(res.Text, "fever") {
		t.Errorf("extracted text missing content: %q", res.Text)
	}
	if len(res.Elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(res.Elements))
	}
	if res.Elements[0].ID != "run_1_0" {
		t.Errorf("element ID = %q, want run_1_0", res.Elements[0].ID)
	}
}

func TestExtractMissingFile(t *testing.T) {
	e := New(Config{})
	_, err := e.Extract(context.Background(), "run_1", "/nonexistent/file.txt", Options{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "unreadable") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := writeTestFile(t, "archive.zip", "not really a zip")
	e := New(Config{})
	_, err := e.Extract(context.Background(), "run_1", path, Options{})
	if err == nil || !strings.Contains(err.Error(), "unsupported document format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestExtractEmptyFile(t *testing.T) {
	path := writeTestFile(t, "empty.txt", "   \n\n  ")
	e := New(Config{})
	_, err := e.Extract(context.Background(), "run_1", path, Options{})
	if err == nil || !strings.Contains(err.Error(), "no usable text") {
		t.Fatalf("expected empty-text error, got %v", err)
	}
}

func TestExtractDirectory(t *testing.T) {
	e := New(Config{})
	_, err := e.Extract(context.Background(), "run_1", t.TempDir(), Options{})
	if err == nil || !strings.Contains(err.Error(), "directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestExtractWritesDebugArtifact(t *testing.T) {
	debugDir := t.TempDir()
	path := writeTestFile(t, "note.txt", "some clinical text here.")
	e := New(Config{DebugDir: debugDir})

	_, err := e.Extract(context.Background(), "run_dbg", path, Options{SaveDebugArtifacts: true})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(debugDir, "run_dbg_text.txt"))
	if err != nil {
		t.Fatalf("debug artifact not written: %v", err)
	}
	if string(data) != "some clinical text here." {
		t.Errorf("debug artifact content = %q", data)
	}
}

func TestExtractDebugWriteFailureIsNonFatal(t *testing.T) {
	path := writeTestFile(t, "note.txt", "text survives a bad debug dir.")
	// A file used as the debug dir makes MkdirAll fail.
	badDir := writeTestFile(t, "blocker", "x")
	e := New(Config{DebugDir: badDir})

	res, err := e.Extract(context.Background(), "run_1", path, Options{SaveDebugArtifacts: true})
	if err != nil {
		t.Fatalf("Extract should succeed despite debug failure: %v", err)
	}
	if len(res.Elements) == 0 {
		t.Error("expected elements")
	}
}

func TestOCRRegistrationRequiresEndpoint(t *testing.T) {
	plain := New(Config{})
	if _, ok := plain.readers["png"]; ok {
		t.Error("png reader registered without OCR endpoint")
	}
	withOCR := New(Config{OCRBaseURL: "http://localhost:9000"})
	for _, f := range []string{"png", "jpg", "jpeg", "tiff"} {
		if _, ok := withOCR.readers[f]; !ok {
			t.Errorf("%s reader not registered with OCR endpoint", f)
		}
	}
}

func TestXLSXReaderFormats(t *testing.T) {
	var r XLSXReader
	found := false
	for _, f := range r.Formats() {
		if f == "xlsx" {
			found = true
		}
	}
	if !found {
		t.Error("XLSXReader does not claim xlsx")
	}
}
