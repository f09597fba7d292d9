// Package tui provides the Bubble Tea interface for a running session.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/focuspet/internal/health"
	"github.com/fakeyudi/focuspet/internal/session"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	timerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("178")).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	phaseWorkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	phaseBreakStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	pausedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	faintedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const barWidth = 20

// ── Key bindings ─────────────────

type keyMap struct {
	Start   key.Binding
	Pause   key.Binding
	Reset   key.Binding
	Longer  key.Binding
	Shorter key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Reset, k.Longer, k.Shorter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Start:   key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "start")),
	Pause:   key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p/space", "pause/resume")),
	Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Longer:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "+5 min")),
	Shorter: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "-5 min")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ── Messages ────────────────────

type statusMsg session.Status

type closedMsg struct{}

type errMsg struct{ err error }

// ── Model ────────────────────

// SubmitFunc applies a user request to the running session.
type SubmitFunc func(session.Request) error

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	petName  string
	statuses <-chan session.Status
	submit   SubmitFunc

	status  session.Status
	seen    bool
	blurred bool // terminal focus lost; cleared on FocusMsg
	err     error
	width   int
	help    help.Model
}

// New creates a model that renders statuses and sends key presses to submit.
func New(petName string, statuses <-chan session.Status, submit SubmitFunc) Model {
	return Model{
		petName:  petName,
		statuses: statuses,
		submit:   submit,
		help:     help.New(),
	}
}

func waitForStatus(ch <-chan session.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return statusMsg(st)
	}
}

func (m Model) send(req session.Request) tea.Cmd {
	return func() tea.Msg {
		if err := m.submit(req); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return waitForStatus(m.statuses) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = session.Status(msg)
		m.seen = true
		return m, waitForStatus(m.statuses)

	case closedMsg:
		return m, tea.Quit

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.BlurMsg:
		if m.blurred {
			return m, nil
		}
		m.blurred = true
		st := m.status
		if st.Phase != session.PhaseWorking || st.Paused || st.BreakPending {
			return m, nil
		}
		return m, m.send(session.Request{Command: session.CommandUnfocused})

	case tea.FocusMsg:
		m.blurred = false
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		m.err = nil
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Start):
			return m, m.send(session.Request{Command: session.CommandStart})
		case key.Matches(msg, keys.Pause):
			cmd := session.CommandPause
			if m.status.Paused {
				cmd = session.CommandResume
			}
			return m, m.send(session.Request{Command: cmd})
		case key.Matches(msg, keys.Reset):
			return m, m.send(session.Request{Command: session.CommandReset})
		case key.Matches(msg, keys.Longer), key.Matches(msg, keys.Shorter):
			if m.status.Phase != session.PhaseIdle {
				return m, nil
			}
			step := 5 * 60
			if key.Matches(msg, keys.Shorter) {
				step = -step
			}
			return m, m.send(session.Request{Command: session.CommandSetDuration, Seconds: m.status.Duration + step})
		}
	}
	return m, nil
}

func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 40
	}
	title := titleStyle.Width(width).Render("  focuspet  " + m.petName)
	if !m.seen {
		return lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("  waiting for session…"))
	}

	st := m.status
	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-10s", label)) + "  " + value + "\n")
	}
	row("Phase:", phaseLabel(st))
	row("Vitality:", vitalityBar(st.Vitality, st.Dead))
	if st.Samples > 0 {
		row("Focus:", fmt.Sprintf("%.0f%%", st.FocusPercentage))
	} else {
		row("Focus:", dimStyle.Render("no gaze data"))
	}
	if st.Session != nil {
		id := st.Session.ID
		if st.Session.LocalOnly {
			id += dimStyle.Render(" (offline)")
		}
		row("Session:", id)
	}

	parts := []string{title, timerStyle.Render(Clock(st.Remaining)), sb.String()}
	if m.err != nil {
		parts = append(parts, errorStyle.Render("  "+m.err.Error()))
	}
	parts = append(parts, "  "+m.help.View(keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Clock formats seconds as MM:SS.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func phaseLabel(st session.Status) string {
	var label string
	switch st.Phase {
	case session.PhaseWorking:
		label = phaseWorkStyle.Render("WORK")
	case session.PhaseBreak:
		label = phaseBreakStyle.Render("BREAK")
	default:
		label = dimStyle.Render("IDLE")
	}
	if st.BreakPending {
		label += dimStyle.Render("  picking a break…")
	} else if st.Paused {
		label += "  " + pausedStyle.Render("PAUSED")
	}
	return label
}

func vitalityBar(v int, dead bool) string {
	filled := v * barWidth / health.MaxVitality
	filled = max(0, min(filled, barWidth))
	bar := barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
	label := fmt.Sprintf(" %3d", v)
	if dead {
		label += "  " + faintedStyle.Render("fainted")
	}
	return bar + label
}

// Run starts the TUI and blocks until the user quits or statuses closes.
// Losing terminal focus during a running work phase submits
// CommandUnfocused once until focus returns.
func Run(petName string, statuses <-chan session.Status, submit SubmitFunc) error {
	p := tea.NewProgram(New(petName, statuses, submit), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}
