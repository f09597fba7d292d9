package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/focuspet/internal/api"
	"github.com/fakeyudi/focuspet/internal/gaze"
	"github.com/fakeyudi/focuspet/internal/notify"
	"github.com/fakeyudi/focuspet/internal/orchestrator"
	"github.com/fakeyudi/focuspet/internal/profile"
	"github.com/fakeyudi/focuspet/internal/session"
	"github.com/fakeyudi/focuspet/internal/tui"
)

var (
	runMinutes int
	runStart   bool
	runPlain   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the focus timer and pet in the foreground",
	Long: `Run drives the work/break timer, the pet's vitality and gaze telemetry.
Other focuspet invocations (start, pause, resume, stop) control it while it runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := GetConfig()
		prof := GetProfile()
		if prof == nil {
			prof = profile.Default()
		}

		dataDir, err := session.DataDir()
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		store, err := session.NewStoreAt(dataDir)
		if err != nil {
			return err
		}

		interactive := !runPlain && term.IsTerminal(os.Stdout.Fd())
		logOut, closeLog, err := runLogOutput(cmd, dataDir, interactive)
		if err != nil {
			return err
		}
		defer closeLog()
		logger := log.New(logOut, "orchestrator: ", log.LstdFlags)

		client := api.NewClient(conf.APIURL, conf.RequestTimeout())
		orch, err := orchestrator.New(orchestrator.Options{
			Config:   conf,
			Sessions: client,
			Breaks:   api.NewBreakClient(client, conf.MinBreakSeconds, conf.MaxBreakSeconds),
			Tracker:  gaze.NewClient(conf.GazeURL, conf.RequestTimeout(), log.New(logOut, "gaze: ", log.LstdFlags)),
			Notifier: buildNotifier(prof, cmd.OutOrStdout()),
			Store:    store,
			Logger:   logger,
			PetName:  prof.PetName,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		statuses, unsubscribe := orch.Subscribe()
		defer unsubscribe()

		runErr := make(chan error, 1)
		go func() { runErr <- orch.Run(ctx) }()

		control := session.NewControl(dataDir)
		go func() {
			err := control.Watch(ctx, func(req session.Request) {
				if err := orch.Submit(ctx, req); err != nil {
					logger.Printf("%s: %v", req.Command, err)
				}
			})
			if err != nil {
				logger.Printf("warning: control requests disabled: %v", err)
			}
		}()

		for _, req := range initialRequests(runMinutes, runStart) {
			if err := orch.Submit(ctx, req); err != nil {
				logger.Printf("%s: %v", req.Command, err)
			}
		}

		if interactive {
			err = tui.Run(prof.PetName, statuses, func(req session.Request) error {
				return orch.Submit(ctx, req)
			})
			stop()
		} else {
			printStatuses(cmd.OutOrStdout(), statuses)
		}

		orch.Close()
		if rerr := <-runErr; rerr != nil {
			return rerr
		}
		return err
	},
}

// initialRequests turns the run flags into requests for the fresh
// orchestrator. --minutes only arms the next work phase; reset and later
// cycles return to the configured length.
func initialRequests(minutes int, start bool) []session.Request {
	var reqs []session.Request
	if minutes > 0 {
		reqs = append(reqs, session.Request{Command: session.CommandSetDuration, Seconds: minutes * 60})
	}
	if start {
		reqs = append(reqs, session.Request{Command: session.CommandStart})
	}
	return reqs
}

// runLogOutput is stderr in plain mode and focuspet.log in the data
// directory while the TUI owns the screen.
func runLogOutput(cmd *cobra.Command, dataDir string, interactive bool) (io.Writer, func(), error) {
	if !interactive {
		return cmd.ErrOrStderr(), func() {}, nil
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "focuspet.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func buildNotifier(prof *profile.Profile, out io.Writer) notify.Notifier {
	var n notify.Multi
	if prof.Notifications {
		n = append(n, &notify.Desktop{AppName: "focuspet"})
	}
	if prof.Sound {
		n = append(n, &notify.Bell{W: out})
	}
	if len(n) == 0 {
		return notify.Nop{}
	}
	return n
}

// printStatuses writes a line whenever the phase, pause state or minute
// changes, until statuses is closed.
func printStatuses(w io.Writer, statuses <-chan session.Status) {
	var last session.Status
	first := true
	for st := range statuses {
		changed := first ||
			st.Phase != last.Phase ||
			st.Paused != last.Paused ||
			st.BreakPending != last.BreakPending ||
			st.Dead != last.Dead ||
			st.Remaining/60 != last.Remaining/60
		first = false
		last = st
		if changed {
			fmt.Fprintln(w, statusLine(st))
		}
	}
}

func statusLine(st session.Status) string {
	line := fmt.Sprintf("%-7s %s  vitality %3d", st.Phase, tui.Clock(st.Remaining), st.Vitality)
	if st.Samples > 0 {
		line += fmt.Sprintf("  focus %3.0f%%", st.FocusPercentage)
	}
	switch {
	case st.BreakPending:
		line += "  (picking a break)"
	case st.Paused:
		line += "  (paused)"
	}
	if st.Dead {
		line += "  (fainted)"
	}
	return line
}

// sendControl hands req to the running `focuspet run` process.
func sendControl(req session.Request) error {
	dataDir, err := session.DataDir()
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}
	return session.NewControl(dataDir).Send(req)
}

func init() {
	runCmd.Flags().IntVarP(&runMinutes, "minutes", "m", 0, "length of the next work phase in minutes (default from config)")
	runCmd.Flags().BoolVar(&runStart, "start", false, "start a work phase immediately")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print status lines instead of the interactive UI")
	rootCmd.AddCommand(runCmd)
}
