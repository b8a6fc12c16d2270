package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfalkner/chronograph"
	"github.com/mfalkner/chronograph/extract"
)

var runFlags struct {
	caller           string
	chunkSize        int
	maxPatternLength int
	domainHint       string
	outputDir        string
	preprocess       bool
	jsonOut          bool
}

var runCmd = &cobra.Command{
	Use:   "run <document>",
	Short: "Run one document through the full pipeline",
	Long: `Run extracts text from the document, builds a knowledge graph from it,
discovers recurring patterns, and verifies the generated hypotheses.

Usage:
  chronograph run report.pdf
  chronograph run scan.png --domain-hint=medical --preprocess
  chronograph run notes.txt --json > report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.caller, "caller", "cli", "Caller identity embedded in the run ID")
	f.IntVar(&runFlags.chunkSize, "chunk-size", 0, "Graph construction chunk size in chars (0 = configured default)")
	f.IntVar(&runFlags.maxPatternLength, "max-pattern-length", 0, "Maximum pattern hop length (0 = configured default)")
	f.StringVar(&runFlags.domainHint, "domain-hint", "", "Domain hint passed to OCR for image documents")
	f.StringVarP(&runFlags.outputDir, "output-dir", "o", "", "Directory for verification result artifacts")
	f.BoolVar(&runFlags.preprocess, "preprocess", false, "Enable OCR image preprocessing")
	f.BoolVar(&runFlags.jsonOut, "json", false, "Print the full report as JSON")
}

func loadConfig() (chronograph.Config, error) {
	if rootFlags.configPath != "" {
		return chronograph.LoadConfig(rootFlags.configPath)
	}
	return chronograph.DefaultConfig(), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.outputDir != "" {
		cfg.OutputDir = runFlags.outputDir
	}

	pipe, err := chronograph.New(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close(cmd.Context())

	opts := []chronograph.ProcessOption{
		chronograph.WithCaller(runFlags.caller),
	}
	if runFlags.chunkSize > 0 {
		opts = append(opts, chronograph.WithChunkSize(runFlags.chunkSize))
	}
	if runFlags.maxPatternLength > 0 {
		opts = append(opts, chronograph.WithMaxPatternLength(runFlags.maxPatternLength))
	}
	if runFlags.domainHint != "" || runFlags.preprocess {
		opts = append(opts, chronograph.WithExtractOptions(extract.Options{
			UsePreprocessing:   runFlags.preprocess,
			EnhancementLevel:   cfg.EnhancementLevel,
			DomainHint:         runFlags.domainHint,
			SaveDebugArtifacts: cfg.SaveDebugArtifacts,
		}))
	}

	report, runErr := pipe.Process(cmd.Context(), args[0], opts...)

	if runFlags.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	}

	printReport(report)
	return runErr
}

func printReport(r *chronograph.Report) {
	fmt.Printf("Run:      %s\n", r.RunID)
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Text:     %d chars in %d elements\n", r.TextLength, r.ElementCount)
	fmt.Printf("Patterns: %d (%d questions)\n", r.PatternCount, r.QuestionCount)
	if r.Failure != nil {
		fmt.Printf("Failed:   stage=%s reason=%s\n", r.Failure.Stage, r.Failure.Reason)
		return
	}
	if r.NoHypotheses {
		fmt.Println("No hypotheses could be generated from this document.")
		return
	}
	fmt.Println()
	for i, res := range r.Results {
		fmt.Printf("%2d. %s\n", i+1, res.Question)
		if res.Error != "" {
			fmt.Printf("    verification failed: %s\n", res.Error)
			continue
		}
		fmt.Printf("    verdict: %s\n", res.Verdict)
		for _, ev := range res.Evidence {
			fmt.Printf("    - %s\n", ev)
		}
	}
}
