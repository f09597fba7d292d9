package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive completed sessions as zstd-compressed JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(GetConfig().DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOut, err)
		}
		n, err := db.Export(cmd.Context(), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(exportOut)
			return err
		}

		cmd.Printf("Exported %d sessions to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "focuspet-sessions.jsonl.zst", "archive path")
	rootCmd.AddCommand(exportCmd)
}
