package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/progress"
	"github.com/gridport/gridport/internal/session"
)

var (
	retrySession string
	retryTable   string
)

// retrySink prints synchronous per-page progress on a single updating line.
type retrySink struct{}

func (retrySink) Publish(e progress.Event) {
	if e.Table == "" || e.RecordsProcessed == 0 {
		return
	}
	fmt.Printf("\r%s: %d records processed", e.Table, e.RecordsProcessed)
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry one failed table of a finished session",
	Long: `Re-run the import of a single table in an existing session. The table's
previous result is replaced and the session status re-aggregated, so a
partially failed session can be walked back to COMPLETED table by table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if retryTable == "" {
			return fmt.Errorf("--table is required")
		}
		id, err := resolveSessionID(retrySession)
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
		a, err := buildApp(ctx, cfg, logger, retrySink{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		fmt.Printf("Retrying %s in session %s...\n", retryTable, id)
		res, err := a.engine.RetryTable(ctx, id, retryTable)
		if err != nil {
			var conflict *session.ConflictError
			if errors.As(err, &conflict) {
				return fmt.Errorf("%s; wait for it to finish or cancel it", conflict)
			}
			return fmt.Errorf("retrying table: %w", err)
		}
		fmt.Println()

		if res.Success {
			fmt.Printf("Retry succeeded: %d/%d records (%d inserted, %d updated, %d skipped)\n",
				res.ProcessedRecords, res.TotalRecords,
				res.InsertedRecords, res.UpdatedRecords, res.SkippedRecords)
		} else {
			fmt.Printf("Retry failed: %s\n", res.Error)
		}

		s, err := a.engine.GetSession(context.Background(), id)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		fmt.Printf("Session %s is now %s.\n", s.ID, s.Status)
		return nil
	},
}

func init() {
	retryCmd.Flags().StringVar(&retrySession, "session", "", "session id (default: last import)")
	retryCmd.Flags().StringVar(&retryTable, "table", "", "table to retry (required)")
	rootCmd.AddCommand(retryCmd)
}
