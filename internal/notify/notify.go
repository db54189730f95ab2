// Package notify tells the user when a camcorder appears or disappears.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const appName = "DV Capture"

// Sink receives device presence changes. Calls are fire-and-forget.
type Sink interface {
	NotifyConnected()
	NotifyDisconnected()
}

// LogSink writes presence changes to the log
type LogSink struct{}

func (LogSink) NotifyConnected()    { slog.Info("MiniDV device connected") }
func (LogSink) NotifyDisconnected() { slog.Info("MiniDV device disconnected") }

// Multi forwards every notification to each sink in order
type Multi []Sink

func (m Multi) NotifyConnected() {
	for _, s := range m {
		s.NotifyConnected()
	}
}

func (m Multi) NotifyDisconnected() {
	for _, s := range m {
		s.NotifyDisconnected()
	}
}

// Runner executes a notification command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DesktopSink shows a desktop notification through notify-send on Linux
// and osascript on macOS. Failures are logged and otherwise ignored.
type DesktopSink struct {
	goos    string
	run     Runner
	timeout time.Duration
}

// NewDesktopSink creates a sink for the running OS
func NewDesktopSink() *DesktopSink {
	return &DesktopSink{goos: runtime.GOOS, run: execRunner, timeout: 5 * time.Second}
}

func (d *DesktopSink) NotifyConnected() {
	d.send("Camcorder connected", "Ready to capture. Press Start, then PLAY on the camcorder.")
}

func (d *DesktopSink) NotifyDisconnected() {
	d.send("Camcorder disconnected", "No MiniDV device found")
}

func (d *DesktopSink) send(title, message string) {
	name, args, ok := d.command(title, message)
	if !ok {
		slog.Debug("Desktop notifications not supported", "os", d.goos)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	output, err := d.run(ctx, name, args...)
	if err != nil {
		slog.Warn("Failed to send notification", "command", name, "error", err, "output", strings.TrimSpace(string(output)))
		return
	}
	slog.Debug("Notification sent", "title", title)
}

func (d *DesktopSink) command(title, message string) (string, []string, bool) {
	switch d.goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name", appName, title, message}, true
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s" subtitle "%s"`,
			escapeAppleScript(message), escapeAppleScript(appName), escapeAppleScript(title))
		return "osascript", []string{"-e", script}, true
	default:
		return "", nil, false
	}
}

func escapeAppleScript(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
