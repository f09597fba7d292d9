package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/profile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Name your pet and choose notifications (re-run anytime to edit)",
	// Bypass the normal PersistentPreRunE so setup works before profile exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, true)
	},
}

// runSetup runs the interactive setup wizard on cmd's input and output.
// When edit is true the current profile supplies the defaults.
func runSetup(cmd *cobra.Command, edit bool) error {
	out := cmd.OutOrStdout()

	var existing *profile.Profile
	if edit && profile.Exists() {
		if p, err := profile.Load(); err == nil {
			existing = p
		}
	}

	prof, err := profile.RunSetup(cmd.InOrStdin(), out, existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := profile.Save(prof); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	fmt.Fprintln(out, "  ✓ Profile saved.")
	fmt.Fprintf(out, "  Setup complete. Run 'focuspet run' to start working with %s.\n", prof.PetName)
	fmt.Fprintln(out)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
