package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/relationship"
)

var (
	applySession     string
	applyCandidates  []string
	applyAllApproved bool
	applyDropStaging bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Materialize approved relationships as foreign keys and junction tables",
	Long: `Turn approved candidates into schema changes: foreign key columns with
backfilled values, junction tables populated from the staged arrays, and
generated option tables where a link's target was never imported.

Re-running is safe; already created proposals are skipped. With
--drop-staging the raw array columns are removed after materialization.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !applyAllApproved && len(applyCandidates) == 0 {
			return fmt.Errorf("pass --candidate ids or --all-approved")
		}

		id, err := resolveSessionID(applySession)
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

		proposals, applyErr := a.engine.ApplyApprovedRelationships(ctx, id, applyCandidates)
		if len(proposals) == 0 && applyErr == nil {
			fmt.Println("Nothing to apply; no approved candidates.")
			return nil
		}

		fmt.Printf("Applied %d proposals:\n", countCreated(proposals))
		for _, p := range proposals {
			status := "pending"
			if p.IsCreated {
				status = "created"
			}
			switch p.Kind {
			case relationship.KindJunction:
				fmt.Printf("  [%s] junction %s (%s <-> %s)\n", status, p.JunctionTable, p.SourceTable, p.TargetTable)
			default:
				unique := ""
				if p.Unique {
					unique = ", unique"
				}
				fmt.Printf("  [%s] foreign key %s.%s -> %s%s\n", status, p.FKTable, p.FKColumn, p.RefTable, unique)
			}
			if p.CreateTarget {
				fmt.Printf("            target %s generated from staged values\n", p.TargetTable)
			}
		}
		if applyErr != nil {
			return fmt.Errorf("apply finished with errors: %w", applyErr)
		}

		if applyDropStaging || a.cfg.Import.DropStaging {
			mat := relationship.NewMaterializer(a.store, a.logger)
			dropped := 0
			for i := range proposals {
				if !proposals[i].IsCreated {
					continue
				}
				if err := mat.DropStaging(ctx, &proposals[i]); err != nil {
					fmt.Printf("Warning: dropping staging column %s.%s: %v\n",
						proposals[i].SourceTable, proposals[i].SourceColumn, err)
					continue
				}
				dropped++
			}
			fmt.Printf("Dropped %d staging columns.\n", dropped)
		}

		fmt.Println("\nCheck the result with 'gridport verify'.")
		return nil
	},
}

func countCreated(proposals []relationship.Proposal) int {
	n := 0
	for _, p := range proposals {
		if p.IsCreated {
			n++
		}
	}
	return n
}

func init() {
	applyCmd.Flags().StringVar(&applySession, "session", "", "session id (default: last import)")
	applyCmd.Flags().StringSliceVar(&applyCandidates, "candidate", nil, "candidate ids to approve and apply")
	applyCmd.Flags().BoolVar(&applyAllApproved, "all-approved", false, "apply every already approved candidate")
	applyCmd.Flags().BoolVar(&applyDropStaging, "drop-staging", false, "drop the staged array columns after materialization")
	rootCmd.AddCommand(applyCmd)
}
