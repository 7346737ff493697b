package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/review"
)

var reviewSession string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review and approve relationship candidates interactively",
	Long: `Open the candidate review screen for a session. Approve or reject each
proposed relationship, adjust cardinalities, and confirm to persist the
decisions. Approved candidates are materialized by 'gridport apply'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveSessionID(reviewSession)
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

		cands, err := a.sessions.Candidates(ctx, id)
		if err != nil {
			return fmt.Errorf("loading candidates: %w", err)
		}
		if len(cands) == 0 {
			return fmt.Errorf("no candidates for session %s; run 'gridport analyze' first", id)
		}

		p := tea.NewProgram(review.NewModel(cands), tea.WithAltScreen())
		finalModel, err := p.Run()
		if err != nil {
			return fmt.Errorf("running review: %w", err)
		}

		m, ok := finalModel.(review.Model)
		if !ok || m.Cancelled() {
			fmt.Println("Review cancelled; nothing saved.")
			return nil
		}
		result := m.Result()
		if result == nil {
			return nil
		}

		if err := a.sessions.SaveCandidates(ctx, result.Candidates); err != nil {
			return fmt.Errorf("saving review decisions: %w", err)
		}

		approved := m.ApprovedIDs()
		fmt.Printf("Saved %d of %d candidates as approved.\n", len(approved), len(result.Candidates))
		if len(approved) > 0 {
			fmt.Println("Materialize them with 'gridport apply'.")
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewSession, "session", "", "session id (default: last import)")
	rootCmd.AddCommand(reviewCmd)
}
