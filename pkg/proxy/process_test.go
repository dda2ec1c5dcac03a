package proxy

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessStatusStoppedWithoutPidFile(t *testing.T) {
	p := &Process{PidFile: filepath.Join(t.TempDir(), "missing.pid")}
	assert.Equal(t, ProcessStopped, p.Status())
}

func TestProcessStatusCorruptedWithStalePid(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "nginx.pid")
	// Pid 1 is reaped init on any sane host but FindProcess+Signal(0) against
	// an unrelated, presumably-dead high pid is what we actually want here;
	// use an implausibly large pid instead to avoid depending on pid 1's
	// permissions.
	require.NoError(t, os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", 999999)), 0o644))
	p := &Process{PidFile: pidFile}
	assert.Equal(t, ProcessCorrupted, p.Status())
}

func TestProcessStatusRunningWithOwnPid(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "nginx.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644))
	p := &Process{PidFile: pidFile}
	assert.Equal(t, ProcessRunning, p.Status())
}
