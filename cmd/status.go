package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/session"
	"github.com/fakeyudi/focuspet/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session, timer and pet status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return err
		}

		st, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				cmd.Println("no active session")
				return nil
			}
			return err
		}

		cmd.Printf("Pet: %s\n", GetProfile().PetName)
		cmd.Printf("Phase: %s\n", st.Phase)
		if st.Phase != session.PhaseIdle {
			cmd.Printf("Remaining: %s\n", tui.Clock(st.Remaining))
		}
		if st.Paused {
			cmd.Println("Paused: yes")
		}
		if st.Session != nil {
			cmd.Printf("Session: %s\n", st.Session.ID)
		}
		cmd.Printf("Vitality: %d\n", st.Vitality)
		if st.Dead {
			cmd.Println("Your pet has fainted. Reset to revive it.")
		}
		if st.Samples > 0 {
			cmd.Printf("Focus: %.0f%% over %d samples\n", st.FocusPercentage, st.Samples)
		}
		if !st.UpdatedAt.IsZero() {
			cmd.Printf("Updated: %s\n", st.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
