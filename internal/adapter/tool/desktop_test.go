package tool

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func TestScreenCapture(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	shell := &recordingShell{}
	shell.onRun = func(cmd string) {
		// cmd is "grab '<file>'"
		file := strings.Trim(strings.TrimPrefix(cmd, "grab "), "'")
		require.NoError(t, os.WriteFile(file, png, 0o600))
	}
	e, root := newTestExecutor(t, func(d *ExecutorDeps) {
		d.Shell = shell
		d.Config.Desktop.ScreenshotCommand = "grab {file}"
	})

	out := run(e, domain.KindScreenCapture, "", "")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), out.Image)
	assert.Equal(t, "Desktop screenshot attached.", out.Output)
	assert.Equal(t, root, shell.workDirs[0])
}

func TestScreenCapture_NoFileWritten(t *testing.T) {
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) {
		d.Shell = &recordingShell{}
		d.Config.Desktop.ScreenshotCommand = "grab {file}"
	})
	out := run(e, domain.KindScreenCapture, "", "")
	assert.Contains(t, out.Error, "wrote no image")
	assert.Empty(t, out.Image)
}

func TestScreenCapture_NotConfigured(t *testing.T) {
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) { d.Config.Desktop.ScreenshotCommand = "" })
	assert.Contains(t, run(e, domain.KindScreenCapture, "", "").Error, "no screenshot command")
}

func TestInputAction(t *testing.T) {
	tests := []struct {
		action, args, wantCmd, wantOut string
	}{
		{"click", "640 400", "xdotool mousemove '640' '400' click 1", "Clicked at 640,400"},
		{"move", "10,20", "xdotool mousemove '10' '20'", "Moved pointer to 10,20"},
		{"type", "it's done", `xdotool type -- 'it'\''s done'`, "Typed 9 characters"},
		{"KEY", "ctrl+s", "xdotool key 'ctrl+s'", "Pressed ctrl+s"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			shell := &recordingShell{}
			e, _ := newTestExecutor(t, func(d *ExecutorDeps) { d.Shell = shell })

			out := run(e, domain.KindInputAction, tt.action, tt.args)
			require.False(t, out.Failed(), out.Error)
			assert.Equal(t, tt.wantCmd, shell.last())
			assert.Equal(t, tt.wantOut, out.Output)
		})
	}
}

func TestInputAction_Errors(t *testing.T) {
	shell := &recordingShell{}
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) {
		d.Shell = shell
		d.Config.Desktop.KeyCommand = ""
	})

	assert.Contains(t, run(e, domain.KindInputAction, "click", "left").Error, "two non-negative integers")
	assert.Contains(t, run(e, domain.KindInputAction, "click", "-1 5").Error, "two non-negative integers")
	assert.Contains(t, run(e, domain.KindInputAction, "type", "").Error, "'text' is required")
	assert.Contains(t, run(e, domain.KindInputAction, "scroll", "").Error, "unknown input action")
	assert.Contains(t, run(e, domain.KindInputAction, "key", "enter").Error, "no key command configured")
	assert.Empty(t, shell.commands)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'a'\''b'`, shellQuote("a'b"))
	assert.Equal(t, `'$(rm -rf /)'`, shellQuote("$(rm -rf /)"))
}
