package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/config"
	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/relationship"
	"github.com/gridport/gridport/internal/report"
	"github.com/gridport/gridport/internal/schema"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/state"
	"github.com/gridport/gridport/internal/verify"
)

var (
	verifySession string
	verifyReport  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify imported row counts against the session's counters",
	Long: `Compare the rows stored in PostgreSQL with the records each table's
import processed. Sync mode demands exact equality; insert and upsert
allow the target to hold rows from earlier imports.

With --report, a full import report (tables, coverage, candidates,
proposals, verification) is written under ~/.gridport/reports/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveSessionID(verifySession)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		a, err := buildApp(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		s, err := a.engine.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if !s.Status.Terminal() {
			return fmt.Errorf("session %s is %s; verify after it finishes", id, s.Status)
		}

		v := &verify.Verifier{
			Store: a.store,
			Callback: func(table string, passed bool) {
				status := "PASS"
				if !passed {
					status = "FAIL"
				}
				fmt.Printf("  [%s] %s\n", status, table)
			},
		}

		fmt.Printf("Verifying row counts for session %s...\n", id)
		result, err := v.VerifyRowCounts(ctx, s)
		if err != nil {
			return fmt.Errorf("verification: %w", err)
		}

		for _, tc := range result.Tables {
			if tc.Status == "SKIPPED" {
				fmt.Printf("  [SKIP] %s: import did not succeed\n", tc.Name)
			} else if tc.RowCountCheck != nil && tc.RowCountCheck.Message != "" {
				fmt.Printf("         %s: %s\n", tc.Name, tc.RowCountCheck.Message)
			}
		}
		fmt.Printf("\nOverall: %s\n", result.Status)

		if verifyReport {
			if err := writeReport(ctx, a, s, result); err != nil {
				return err
			}
		}
		return nil
	},
}

// writeReport assembles the full import report and writes the JSON and text
// renditions under the reports directory.
func writeReport(ctx context.Context, a *app, s *session.ImportSession, result *verify.Result) error {
	cands, err := a.sessions.Candidates(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("loading candidates: %w", err)
	}
	props, err := a.sessions.Proposals(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("loading proposals: %w", err)
	}

	var analysis *relationship.Analysis
	if len(cands) > 0 {
		analysis = &relationship.Analysis{SessionID: s.ID, Candidates: cands}
	}

	rep := report.Generate(a.cfg.Source.BaseID, s, sessionCoverage(ctx, a, s), analysis, props, result)

	dir := config.ExpandHome("~/.gridport/reports/")
	jsonPath := filepath.Join(dir, fmt.Sprintf("import-%s.json", s.ID))
	textPath := filepath.Join(dir, fmt.Sprintf("import-%s.txt", s.ID))
	if err := report.WriteJSON(rep, jsonPath); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := report.WriteText(rep, textPath); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	fmt.Printf("\nReport written to %s\n", jsonPath)
	if st, err := state.Load(""); err == nil {
		st.ReportPath = jsonPath
		_ = st.Save("")
	}
	return nil
}

// sessionCoverage recomputes field mapping coverage from the live schema.
// An unreachable source leaves the report's coverage section out.
func sessionCoverage(ctx context.Context, a *app, s *session.ImportSession) *mapping.Coverage {
	var fields []schema.FieldDefinition
	for _, name := range s.TableNames {
		fs, err := a.source.ListFields(ctx, name)
		if err != nil {
			return nil
		}
		fields = append(fields, fs...)
	}
	if len(fields) == 0 {
		return nil
	}
	cov := mapping.NewRegistry().CoverageFor(fields)
	return &cov
}

func init() {
	verifyCmd.Flags().StringVar(&verifySession, "session", "", "session id (default: last import)")
	verifyCmd.Flags().BoolVar(&verifyReport, "report", false, "write the import report under ~/.gridport/reports/")
	rootCmd.AddCommand(verifyCmd)
}
