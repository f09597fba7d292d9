package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/session"
)

var stopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"reset"},
	Short:   "Abandon the current phase and return to idle",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return err
		}

		st, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return fmt.Errorf("no active session")
			}
			return err
		}
		if st.Phase == session.PhaseIdle {
			return fmt.Errorf("no active session")
		}

		if err := sendControl(session.Request{Command: session.CommandReset}); err != nil {
			return err
		}
		cmd.Println("Reset requested.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
