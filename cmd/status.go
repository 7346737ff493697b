package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/session"
)

var statusSession string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of an import session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveSessionID(statusSession)
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

		fmt.Printf("Session: %s\n", s.ID)
		fmt.Printf("Status:  %s\n", s.Status)
		fmt.Printf("Owner:   %s\n", s.OwnerID)
		fmt.Printf("Mode:    %s\n", s.Mode)
		fmt.Printf("Records: %d/%d processed\n", s.ProcessedRecords, s.TotalRecords)
		fmt.Printf("Started: %s\n", s.StartTime.Format(time.RFC3339))
		if s.EndTime != nil {
			fmt.Printf("Ended:   %s (took %s)\n",
				s.EndTime.Format(time.RFC3339), s.EndTime.Sub(s.StartTime).Round(time.Second))
		}
		if s.ErrorMessage != "" {
			fmt.Printf("Error:   %s\n", s.ErrorMessage)
		}

		fmt.Println("\nTables:")
		for _, name := range s.TableNames {
			res := s.Results[name]
			switch {
			case res == nil:
				fmt.Printf("  [  ] %s\n", name)
			case res.Success:
				fmt.Printf("  [OK] %s: %d records\n", name, res.ProcessedRecords)
			case res.Error == "" && s.Status == session.StatusRunning:
				fmt.Printf("  [>>] %s: %d/%d records\n", name, res.ProcessedRecords, res.TotalRecords)
			default:
				fmt.Printf("  [!!] %s: %s\n", name, res.Error)
			}
		}

		// Analysis state, if any
		if cands, err := a.sessions.Candidates(ctx, id); err == nil && len(cands) > 0 {
			approved := 0
			for _, c := range cands {
				if c.Approved {
					approved++
				}
			}
			fmt.Printf("\nCandidates: %d found, %d approved\n", len(cands), approved)
		}
		if props, err := a.sessions.Proposals(ctx, id); err == nil && len(props) > 0 {
			created := 0
			for _, p := range props {
				if p.IsCreated {
					created++
				}
			}
			fmt.Printf("Proposals:  %d built, %d applied\n", len(props), created)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSession, "session", "", "session id (default: last import)")
	rootCmd.AddCommand(statusCmd)
}
