package command

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
}

func TestExecutor_Run(t *testing.T) {
	skipOnWindows(t)

	out, err := NewExecutor(5*time.Second).Run(context.Background(), "/bin/sh", "-c", "echo hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", strings.TrimSpace(out))
}

func TestExecutor_Run_Failure(t *testing.T) {
	skipOnWindows(t)

	_, err := NewExecutor(5*time.Second).Run(context.Background(), "/bin/sh", "-c", "echo something went wrong >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something went wrong")
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestExecutor_Run_Timeout(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Run(context.Background(), "/bin/sh", "-c", "sleep 10")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_Run_MissingBinary(t *testing.T) {
	_, err := NewExecutor(time.Second).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExecutor_Launch(t *testing.T) {
	skipOnWindows(t)

	marker := filepath.Join(t.TempDir(), "launched")
	require.NoError(t, NewExecutor(time.Second).Launch("touch '"+marker+"'"))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestExecutor_Start_DoesNotWait(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	require.NoError(t, NewExecutor(time.Second).Start("sleep", "3"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_Start_MissingBinary(t *testing.T) {
	err := NewExecutor(time.Second).Start(filepath.Join(t.TempDir(), "no-such-binary"))
	assert.Error(t, err)
}

func TestExecutor_Launch_Empty(t *testing.T) {
	assert.Error(t, NewExecutor(time.Second).Launch("   "))
}

func TestShellCommand(t *testing.T) {
	name, args := ShellCommand("windows", `"C:\Program Files\app.exe"`)
	assert.Equal(t, "cmd", name)
	assert.Equal(t, []string{"/C", `"C:\Program Files\app.exe"`}, args)

	name, args = ShellCommand("darwin", `open -a "Visual Studio Code"`)
	assert.Equal(t, "/bin/sh", name)
	assert.Equal(t, []string{"-c", `open -a "Visual Studio Code"`}, args)
}

func TestMockRunner(t *testing.T) {
	m := NewMockRunner()
	_, err := m.Run(context.Background(), "osascript", "-e", "beep")
	require.NoError(t, err)
	require.NoError(t, m.Launch("code"))
	require.NoError(t, m.Start("powershell", "-Command", "x"))

	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "osascript -e beep", calls[0].String())
	assert.True(t, calls[1].Launched)
	assert.True(t, calls[2].Detached)
}

func TestOpenURLCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{"linux", "xdg-open", []string{"http://127.0.0.1:8765/"}},
		{"darwin", "open", []string{"http://127.0.0.1:8765/"}},
		{"windows", "rundll32", []string{"url.dll,FileProtocolHandler", "http://127.0.0.1:8765/"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args := OpenURLCommand(tt.goos, "http://127.0.0.1:8765/")
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
