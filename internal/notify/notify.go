// Package notify delivers phase-change notifications and one-shot alerts.
// Delivery is best-effort: callers log errors and move on.
package notify

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier is the side channel for phase transitions and alerts.
type Notifier interface {
	// Notify shows a phase-change notification.
	Notify(title, body string) error
	// Alert plays a one-shot cue.
	Alert(message string) error
}

// Runner executes an external program.
// This abstraction allows mocking in tests.
type Runner func(name string, args ...string) error

func defaultRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Desktop shows native desktop notifications via notify-send (Linux) or
// osascript (macOS).
type Desktop struct {
	AppName string
	GOOS    string // if empty, uses runtime.GOOS
	Runner  Runner // if nil, runs the real program
}

// Notify implements Notifier.
func (d *Desktop) Notify(title, body string) error {
	runner := d.Runner
	if runner == nil {
		runner = defaultRunner
	}
	goos := d.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(title))
		return runner("osascript", "-e", script)
	case "linux", "freebsd", "openbsd", "netbsd":
		args := []string{}
		if d.AppName != "" {
			args = append(args, "--app-name", d.AppName)
		}
		return runner("notify-send", append(args, title, body)...)
	}
	return fmt.Errorf("desktop notifications are not supported on %s", goos)
}

// Alert implements Notifier with an urgent notification.
func (d *Desktop) Alert(message string) error {
	return d.Notify(d.AppName, message)
}

// appleQuote renders s as an AppleScript string literal.
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Bell rings the terminal bell on alerts. Notify is a no-op.
type Bell struct {
	W io.Writer
}

func (b *Bell) Notify(title, body string) error { return nil }

func (b *Bell) Alert(message string) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Alert(message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Alert(message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(title, body string) error { return nil }
func (Nop) Alert(message string) error      { return nil }
