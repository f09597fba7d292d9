package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/server"
	"github.com/fakeyudi/focuspet/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session, statistics and gaze relay backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := GetConfig()
		addr := conf.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		db, err := store.Open(conf.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.New(cmd.ErrOrStderr(), "server: ", log.LstdFlags)
		return server.New(db, logger).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
