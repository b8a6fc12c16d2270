package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfalkner/chronograph/audit"
)

var runsFlags struct {
	dbPath string
	limit  int
	runID  string
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List audited pipeline runs",
	Long: `Runs lists past pipeline runs from the audit database, newest first.
With --run-id it shows that run's stage outcomes instead.`,
	RunE: runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.StringVar(&runsFlags.dbPath, "db", "", "Audit DB path (default: audit_db_path from config)")
	f.IntVar(&runsFlags.limit, "limit", 20, "Maximum number of runs to list")
	f.StringVar(&runsFlags.runID, "run-id", "", "Show stage results for one run")
}

func runRuns(cmd *cobra.Command, args []string) error {
	dbPath := runsFlags.dbPath
	if dbPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath = cfg.AuditDBPath
	}
	if dbPath == "" {
		return fmt.Errorf("no audit database configured (set audit_db_path or pass --db)")
	}

	store, err := audit.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if runsFlags.runID != "" {
		stages, err := store.StageResults(cmd.Context(), runsFlags.runID)
		if err != nil {
			return err
		}
		if len(stages) == 0 {
			fmt.Printf("No stage results for run %s\n", runsFlags.runID)
			return nil
		}
		for _, s := range stages {
			status := "ok"
			if !s.OK {
				status = "failed"
			}
			fmt.Printf("%-12s %-6s %6dms  %s%s\n", s.Stage, status, s.ElapsedMs, s.Detail, s.Error)
		}
		return nil
	}

	runs, err := store.ListRuns(cmd.Context(), runsFlags.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		line := fmt.Sprintf("%-40s %-10s %s", r.ID, r.Status, r.DocumentPath)
		if r.NoHypotheses {
			line += "  (no hypotheses)"
		}
		if r.FailureStage != "" {
			line += fmt.Sprintf("  [failed at %s]", r.FailureStage)
		}
		fmt.Println(line)
	}
	return nil
}
