package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// OCRConfig configures the external OCR collaborator.
type OCRConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OCRReader sends image documents to the external OCR service and returns
// the recognized text. The service is a black box beyond this contract.
type OCRReader struct {
	cfg    OCRConfig
	client *http.Client
}

// NewOCRReader creates an OCR-backed reader for image formats.
func NewOCRReader(cfg OCRConfig) *OCRReader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OCRReader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *OCRReader) Formats() []string {
	return []string{"jpg", "jpeg", "png", "tif", "tiff", "bmp"}
}

// Text satisfies Reader with default options.
func (r *OCRReader) Text(ctx context.Context, path string) (string, error) {
	return r.Recognize(ctx, path, Options{})
}

// ocrResponse is the collaborator's recognition result.
type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Recognize uploads the image with the extraction options encoded as form
// fields and returns the recognized text.
func (r *OCRReader) Recognize(ctx context.Context, path string, opts Options) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}

	fields := map[string]string{
		"use_preprocessing": strconv.FormatBool(opts.UsePreprocessing),
	}
	if opts.EnhancementLevel != "" {
		fields["enhancement_level"] = opts.EnhancementLevel
	}
	if opts.DomainHint != "" {
		fields["domain_hint"] = opts.DomainHint
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", err
		}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/recognize", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service error %d: %s", resp.StatusCode, string(respBody))
	}

	var result ocrResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding ocr response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ocr service: %s", result.Error)
	}
	return result.Text, nil
}
