package cmd

import (
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/api"
	"github.com/fakeyudi/focuspet/internal/store"
)

var statsLocal bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show completed-session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st *api.Stats
		if statsLocal {
			db, err := store.Open(GetConfig().DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			s, err := db.Stats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			st = &api.Stats{
				TotalSessions:     s.TotalSessions,
				TotalFocusTime:    s.TotalFocusSeconds,
				AverageSession:    s.AverageMinutes,
				TodaySessions:     s.TodaySessions,
				AverageFocusScore: int(math.Round(s.AverageScore * 100)),
				BestFocusScore:    int(math.Round(s.BestScore * 100)),
			}
		} else {
			conf := GetConfig()
			s, err := api.NewClient(conf.APIURL, conf.RequestTimeout()).Stats(cmd.Context())
			if err != nil {
				return err
			}
			st = s
		}

		focus := time.Duration(st.TotalFocusTime) * time.Second
		cmd.Printf("Sessions: %d (%d today)\n", st.TotalSessions, st.TodaySessions)
		cmd.Printf("Focus time: %s\n", focus.String())
		cmd.Printf("Average session: %.1f min\n", st.AverageSession)
		cmd.Printf("Focus score: %d%% average, %d%% best\n", st.AverageFocusScore, st.BestFocusScore)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsLocal, "local", false, "read the local database instead of asking the backend")
	rootCmd.AddCommand(statsCmd)
}
