package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/config"
	"github.com/gridport/gridport/internal/importer"
	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/progress"
	"github.com/gridport/gridport/internal/schema"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/state"
	"github.com/gridport/gridport/internal/storage"
	"github.com/gridport/gridport/internal/ws"
)

var (
	importOwner  string
	importTables []string
	importMode   string
	importDryRun bool
	importListen bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tables from the grid base into PostgreSQL",
	Long: `Create an import session and stream the selected tables into PostgreSQL.
Without --tables, the tables from the last 'gridport import' run are used,
or every table in the base on a first run.

The command blocks until the session finishes; Ctrl-C cancels at the next
page boundary and the partial import is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if importDryRun {
			return runImportDryRun(ctx, cfg)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		var sink progress.Sink = progress.LogSink{Logger: logger}
		if importListen {
			hub := ws.NewHub(logger)
			go hub.Run()
			sink = progress.MultiSink{progress.LogSink{Logger: logger}, ws.Sink{Hub: hub}}

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", hub.HandleWebSocket)
			srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Warn("progress listener failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			fmt.Fprintf(os.Stderr, "Progress feed: ws://localhost:%d/ws\n", cfg.Server.Port)
		}

		a, err := buildApp(ctx, cfg, logger, sink)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		tables, err := resolveImportTables(ctx, a)
		if err != nil {
			return err
		}

		mode := storage.WriteMode(importMode)
		if importMode == "" {
			mode = storage.WriteMode(cfg.Import.Mode)
		}
		switch mode {
		case storage.ModeInsert, storage.ModeUpsert, storage.ModeSync:
		default:
			return fmt.Errorf("invalid mode %q (want insert, upsert, or sync)", mode)
		}

		id, err := a.engine.StartImport(ctx, importOwnerID(), tables, mode)
		if err != nil {
			return fmt.Errorf("starting import: %w", err)
		}
		rememberSession(id, tables)
		fmt.Printf("Import session %s started: %d tables, %s mode\n", id, len(tables), mode)

		watcher := importer.NewWatcher(a.sessions, 0)
		final, err := watcher.Watch(ctx, id, func(s *session.ImportSession) {
			if s.TotalRecords > 0 {
				pct := float64(s.ProcessedRecords) / float64(s.TotalRecords) * 100
				fmt.Printf("\rProgress: %.1f%% (%d/%d records)", pct, s.ProcessedRecords, s.TotalRecords)
			}
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watching import: %w", err)
			}
			fmt.Println("\nCancelling import...")
			a.engine.Cancel(id)
			a.engine.Wait(id)
			final, err = a.engine.GetSession(context.Background(), id)
			if err != nil {
				return fmt.Errorf("loading session after cancel: %w", err)
			}
		}

		fmt.Println()
		printSessionOutcome(final)
		return nil
	},
}

// resolveImportTables picks the table set: the --tables flag, then the last
// selection from state, then every table in the base.
func resolveImportTables(ctx context.Context, a *app) ([]string, error) {
	if len(importTables) > 0 {
		return importTables, nil
	}
	if st, err := state.Load(""); err == nil && len(st.SelectedTables) > 0 {
		return st.SelectedTables, nil
	}
	all, err := a.engine.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names, nil
}

func importOwnerID() string {
	if importOwner != "" {
		return importOwner
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func printSessionOutcome(s *session.ImportSession) {
	fmt.Printf("Import %s: %s\n", s.ID, s.Status)
	for _, name := range s.TableNames {
		res := s.Results[name]
		if res == nil {
			fmt.Printf("  [  ] %s: not started\n", name)
			continue
		}
		marker := "OK"
		if !res.Success {
			marker = "!!"
		}
		fmt.Printf("  [%s] %s: %d/%d records (%d inserted, %d updated, %d skipped",
			marker, name, res.ProcessedRecords, res.TotalRecords,
			res.InsertedRecords, res.UpdatedRecords, res.SkippedRecords)
		if res.DeletedRecords > 0 {
			fmt.Printf(", %d deleted", res.DeletedRecords)
		}
		fmt.Println(")")
		if res.Error != "" {
			fmt.Printf("       %s\n", res.Error)
		}
	}

	switch s.Status {
	case session.StatusCompleted:
		fmt.Println("\nImport completed. Run 'gridport analyze' to detect relationships.")
	case session.StatusPartialFailed:
		fmt.Println("\nSome tables failed. Retry them with 'gridport retry --table <name>'.")
	case session.StatusCancelled:
		fmt.Println("\nImport cancelled. Finished tables are kept; re-run to continue.")
	case session.StatusFailed:
		if s.ErrorMessage != "" {
			fmt.Printf("\nImport failed: %s\n", s.ErrorMessage)
		} else {
			fmt.Println("\nImport failed. See the log for details.")
		}
	}
}

// runImportDryRun prints the column plans without touching the target.
func runImportDryRun(ctx context.Context, cfg *config.Config) error {
	src := buildSource(cfg)
	reg := mapping.NewRegistry()

	tables := importTables
	if len(tables) == 0 {
		all, err := src.ListTables(ctx)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
		for _, t := range all {
			tables = append(tables, t.Name)
		}
	}

	fmt.Printf("Dry run: column plans for %d tables, nothing will be written.\n", len(tables))

	var allFields []schema.FieldDefinition
	for _, name := range tables {
		fields, err := src.ListFields(ctx, name)
		if err != nil {
			return fmt.Errorf("fetching fields for %s: %w", name, err)
		}
		allFields = append(allFields, fields...)

		plan := reg.PlanTable(mapping.SanitizeIdentifier(name), fields)
		fallback := make(map[string]bool, len(plan.Unsupported))
		for _, u := range plan.Unsupported {
			fallback[u] = true
		}

		fmt.Printf("\n%s -> %s\n", name, plan.Table)
		for _, pc := range plan.Columns {
			note := ""
			switch {
			case pc.Column.IsStaging:
				note = "staging"
			case fallback[pc.Field.Name]:
				note = fmt.Sprintf("fallback for %q", pc.Field.Type)
			}
			if note != "" {
				note = "  (" + note + ")"
			}
			nullable := ""
			if !pc.Column.Nullable {
				nullable = " NOT NULL"
			}
			fmt.Printf("  %-32s %-12s%s%s\n", pc.Column.Name, pc.Column.StorageType, nullable, note)
		}
	}

	cov := reg.CoverageFor(allFields)
	fmt.Printf("\nField coverage: %d mapped, %d fallback (%.1f%%)\n",
		cov.Supported, cov.Unsupported, cov.Percentage)
	return nil
}

func init() {
	importCmd.Flags().StringVar(&importOwner, "owner", "", "session owner id (default: $USER)")
	importCmd.Flags().StringSliceVar(&importTables, "tables", nil, "tables to import (default: last selection, then all)")
	importCmd.Flags().StringVar(&importMode, "mode", "", "write mode: insert, upsert, or sync (default from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "print column plans without writing")
	importCmd.Flags().BoolVar(&importListen, "listen", false, "serve live progress over websocket while importing")
	rootCmd.AddCommand(importCmd)
}
