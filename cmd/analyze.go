package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var analyzeSession string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect relationship candidates in the staged link columns",
	Long: `Scan the staged record-id arrays of a finished import session, resolve
which table each column points at, and classify the cardinality of every
link. Candidates are persisted for 'gridport review' and 'gridport apply'.

Re-running after more data lands refreshes the statistics; approvals
given in an earlier review are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := resolveSessionID(analyzeSession)
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

		fmt.Printf("Analyzing session %s...\n", id)
		analysis, err := a.engine.AnalyzeRelationships(ctx, id)
		if err != nil {
			return fmt.Errorf("analyzing relationships: %w", err)
		}

		if len(analysis.Candidates) == 0 {
			fmt.Println("No relationship candidates found.")
		} else {
			fmt.Printf("Found %d candidates:\n", len(analysis.Candidates))
			for _, c := range analysis.Candidates {
				mark := " "
				if c.Approved {
					mark = "*"
				}
				note := ""
				if c.CreateTarget {
					note = "  (target table will be created)"
				}
				fmt.Printf("  [%s] %s%s\n", mark, c.String(), note)
			}
		}

		if len(analysis.Unresolved) > 0 {
			fmt.Printf("\n%d staging columns could not be resolved:\n", len(analysis.Unresolved))
			for _, u := range analysis.Unresolved {
				fmt.Printf("  %s.%s: %s\n", u.Table, u.Column, u.Reason)
			}
		}

		if len(analysis.Candidates) > 0 {
			fmt.Println("\nApprove candidates with 'gridport review', then 'gridport apply'.")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSession, "session", "", "session id (default: last import)")
	rootCmd.AddCommand(analyzeCmd)
}
