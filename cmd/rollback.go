package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/session"
)

var (
	rollbackSession string
	rollbackTables  []string
	rollbackConfirm bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Drop a session's imported tables from PostgreSQL",
	Long: `Drop the tables an import session created, including junction tables and
generated option tables from applied relationships. The session record
itself is kept for history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rollbackConfirm {
			fmt.Println("Rollback requires --confirm to proceed.")
			fmt.Println("This will DROP imported tables from the target database.")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		id, err := resolveSessionID(rollbackSession)
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
		if s.Status == session.StatusRunning {
			return fmt.Errorf("session %s is still running; cancel it first", id)
		}

		tables := rollbackTables
		if len(tables) == 0 {
			tables = rollbackTableSet(ctx, a, s)
		}
		if len(tables) == 0 {
			fmt.Println("Nothing to roll back.")
			return nil
		}

		var dropped []string
		var errs []string
		for _, t := range tables {
			if err := a.store.DropTables(ctx, []string{t}); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", t, err))
				continue
			}
			dropped = append(dropped, t)
		}

		if len(dropped) > 0 {
			fmt.Printf("Dropped tables: %v\n", dropped)
		}
		if len(errs) > 0 {
			fmt.Println("Errors during rollback:")
			for _, e := range errs {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d tables could not be dropped", len(errs))
		}
		return nil
	},
}

// rollbackTableSet collects every table the session created: junctions and
// generated targets first so base tables lose their dependents cleanly.
func rollbackTableSet(ctx context.Context, a *app, s *session.ImportSession) []string {
	seen := map[string]bool{}
	var tables []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}

	if props, err := a.sessions.Proposals(ctx, s.ID); err == nil {
		for _, p := range props {
			if !p.IsCreated {
				continue
			}
			add(p.JunctionTable)
			if p.CreateTarget {
				add(p.TargetTable)
			}
		}
	}
	for _, name := range s.TableNames {
		add(mapping.SanitizeIdentifier(name))
	}
	return tables
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackSession, "session", "", "session id (default: last import)")
	rollbackCmd.Flags().StringSliceVar(&rollbackTables, "tables", nil, "specific tables to drop instead of the whole session")
	rollbackCmd.Flags().BoolVar(&rollbackConfirm, "confirm", false, "skip confirmation prompt")
	rootCmd.AddCommand(rollbackCmd)
}
