package extract

import (
	"context"
	"fmt"
	"os"
)

// TextReader handles plain text (.txt) files.
type TextReader struct{}

func (r *TextReader) Formats() []string { return []string{"txt"} }

func (r *TextReader) Text(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return string(data), nil
}
