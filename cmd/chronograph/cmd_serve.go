package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfalkner/chronograph"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Serve exposes the pipeline as an HTTP API:

  POST /runs    multipart file upload (field "file") or JSON {"path": ...}
  GET  /runs    list audited runs
  GET  /health  liveness check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", ":8080", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Structured JSON logging for server mode.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pipe, err := chronograph.New(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close(context.Background())

	h := &serverHandler{pipe: pipe}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", h.handleRun)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /health", h.handleHealth)

	srv := &http.Server{
		Addr:         serveFlags.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // runs can be long
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", serveFlags.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

type serverHandler struct {
	pipe chronograph.Pipeline
}

// POST /runs
// Accepts a multipart file upload or JSON with a local file path.
func (h *serverHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	path, cleanup, err := resolveDocument(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	report, runErr := h.pipe.Process(ctx, path, chronograph.WithCaller("http"))
	status := http.StatusOK
	if runErr != nil {
		// The report is well-formed even for failed runs; surface it with
		// an error status so clients can branch on either.
		status = http.StatusUnprocessableEntity
		slog.Error("run failed", "error", runErr)
	}
	writeJSON(w, status, report)
}

// GET /runs
func (h *serverHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	auditor := h.pipe.Audit()
	if auditor == nil {
		writeError(w, http.StatusNotFound, "auditing is not enabled")
		return
	}
	runs, err := auditor.ListRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		slog.Error("listing runs", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /health
func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveDocument extracts the document path from the request: either a
// multipart upload saved to a temp file, or a JSON body naming a path.
func resolveDocument(r *http.Request) (path string, cleanup func(), err error) {
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)
			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				return "", nil, fmt.Errorf("saving upload: %w", err)
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				os.Remove(tmpPath)
				return "", nil, fmt.Errorf("saving upload: %w", err)
			}
			dst.Close()
			return tmpPath, func() { os.Remove(tmpPath) }, nil
		}
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		return "", nil, fmt.Errorf("expected multipart file or JSON with 'path'")
	}
	return req.Path, nil, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
