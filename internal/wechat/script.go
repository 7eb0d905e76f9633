package wechat

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"infobot/internal/domain"
)

// OsaScript drives the WeChat desktop client on macOS through
// AppleScript UI scripting (osascript). It is a thin boundary: every
// method shells out, parses stdout, and reports failure as an error so
// the journal can retry on the next poll cycle.
type OsaScript struct {
	bin    string
	logger *slog.Logger
}

func NewOsaScript(logger *slog.Logger) *OsaScript {
	return &OsaScript{bin: "osascript", logger: logger}
}

func (o *OsaScript) Name() string { return "osascript" }

const scriptClientRunning = `
tell application "System Events"
	return (name of processes) contains "WeChat"
end tell
`

const scriptActivate = `
tell application "WeChat"
	activate
	delay 1
end tell
`

// Ready checks that we are on macOS, osascript is available, and the
// WeChat process is running.
func (o *OsaScript) Ready(ctx context.Context) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("osascript automator requires macOS (running on %s)", runtime.GOOS)
	}
	if _, err := exec.LookPath(o.bin); err != nil {
		return fmt.Errorf("osascript not found: %w", err)
	}
	out, err := o.run(ctx, scriptClientRunning)
	if err != nil {
		return fmt.Errorf("cannot query client process: %w", err)
	}
	if !strings.Contains(out, "true") {
		return fmt.Errorf("wechat desktop client is not running")
	}
	return nil
}

// Focus raises the client and jumps to the contact's chat via the
// search field (Cmd+F, type name, Return).
func (o *OsaScript) Focus(ctx context.Context, contact string) error {
	script := fmt.Sprintf(`
tell application "WeChat"
	activate
	delay 0.5
end tell
tell application "System Events"
	tell process "WeChat"
		try
			set frontmost to true
			keystroke "f" using command down
			delay 0.5
			set the clipboard to "%s"
			key code 9 using command down
			delay 0.8
			key code 36
			delay 0.5
			return true
		on error
			return false
		end try
	end tell
end tell
`, escapeAppleScript(contact))

	out, err := o.run(ctx, script)
	if err != nil {
		return fmt.Errorf("focus %s: %w", contact, err)
	}
	if !strings.Contains(out, "true") {
		return fmt.Errorf("focus %s: chat window not found", contact)
	}
	return nil
}

// ReadLatest returns the newest entry of the focused contact's chat.
// The accessibility tree exposes message rows as static texts; we take
// the last one.
func (o *OsaScript) ReadLatest(ctx context.Context, contact string) (domain.LatestEntry, error) {
	if err := o.Focus(ctx, contact); err != nil {
		return domain.LatestEntry{}, err
	}

	const script = `
tell application "System Events"
	tell process "WeChat"
		try
			tell window 1
				set rows to every static text of scroll area 1
				if (count of rows) > 0 then
					return value of last item of rows
				end if
				return ""
			end tell
		on error
			return ""
		end try
	end tell
end tell
`
	out, err := o.run(ctx, script)
	if err != nil {
		return domain.LatestEntry{}, fmt.Errorf("read latest from %s: %w", contact, err)
	}
	content := strings.TrimSpace(out)
	return domain.LatestEntry{
		Content:    content,
		Kind:       Classify(content),
		ObservedAt: time.Now(),
	}, nil
}

// Send pastes the text via the clipboard and presses Return. Keystroke
// injection mangles CJK input, so clipboard paste is the reliable path.
func (o *OsaScript) Send(ctx context.Context, contact string, text string) error {
	if err := o.Focus(ctx, contact); err != nil {
		return err
	}

	script := fmt.Sprintf(`
set the clipboard to "%s"
tell application "System Events"
	tell process "WeChat"
		try
			set frontmost to true
			delay 0.5
			key code 9 using command down
			delay 0.5
			key code 36
			delay 0.5
			return true
		on error
			return false
		end try
	end tell
end tell
`, escapeAppleScript(text))

	out, err := o.run(ctx, script)
	if err != nil {
		return fmt.Errorf("send to %s: %w", contact, err)
	}
	if !strings.Contains(out, "true") {
		return fmt.Errorf("send to %s: input rejected", contact)
	}
	return nil
}

// Refresh re-activates the client window.
func (o *OsaScript) Refresh(ctx context.Context) error {
	_, err := o.run(ctx, scriptActivate)
	if err != nil {
		return fmt.Errorf("refresh client: %w", err)
	}
	return nil
}

func (o *OsaScript) run(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, o.bin, "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("osascript: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
