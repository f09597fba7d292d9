package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/session"
	"github.com/fakeyudi/focuspet/internal/tui"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Begin a work phase in the running focuspet",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return err
		}

		st, err := store.Load()
		if err != nil && !errors.Is(err, session.ErrNoSession) {
			return err
		}
		if st != nil && st.Phase != session.PhaseIdle {
			return fmt.Errorf("session already in progress (%s, %s remaining)", st.Phase, tui.Clock(st.Remaining))
		}

		if err := sendControl(session.Request{Command: session.CommandStart}); err != nil {
			return err
		}
		cmd.Println("Start requested.")
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the countdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sendControl(session.Request{Command: session.CommandPause}); err != nil {
			return err
		}
		cmd.Println("Pause requested.")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused countdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sendControl(session.Request{Command: session.CommandResume}); err != nil {
			return err
		}
		cmd.Println("Resume requested.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}
