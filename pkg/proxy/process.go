package proxy

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
)

// ProcessStatus is the reverse-proxy engine's supervision state (spec.md
// §4.4).
type ProcessStatus int

const (
	ProcessStopped ProcessStatus = iota
	ProcessRunning
	ProcessCorrupted
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessRunning:
		return "Running"
	case ProcessCorrupted:
		return "Corrupted"
	default:
		return "Stopped"
	}
}

// DefaultPidFilePath is the conventional location used unless the engine's
// own config file declares another (spec.md §4.4).
const DefaultPidFilePath = "/var/run/nginx.pid"

// Process supervises the reverse-proxy engine binary through its pid file,
// grounded on lazydocker's OSCommand pattern of shelling out to an external
// binary and tracking its lifecycle (pkg/commands/os.go), adapted here from
// "run one foreground command" into "start/stop/inspect a background
// daemon via its pid file and POSIX signals".
type Process struct {
	BinaryPath string
	ConfigPath string
	PidFile    string
}

// Status reads the pid file and probes whether the named process is alive.
func (p *Process) Status() ProcessStatus {
	pid, ok := p.readPid()
	if !ok {
		return ProcessStopped
	}
	if processAlive(pid) {
		return ProcessRunning
	}
	return ProcessCorrupted
}

func (p *Process) readPid() (int, bool) {
	data, err := os.ReadFile(p.PidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Start clears a Corrupted pid file, spawns the engine, and waits for the
// pid file to reappear (spec.md §4.4).
func (p *Process) Start() error {
	if p.Status() == ProcessCorrupted {
		if err := os.Remove(p.PidFile); err != nil && !os.IsNotExist(err) {
			return flecserr.Because(flecserr.KindRuntimeFailure, "remove corrupted pid file", err)
		}
	}
	if p.Status() == ProcessRunning {
		return nil
	}

	cmd := exec.Command(p.BinaryPath, "-c", p.ConfigPath)
	if err := cmd.Start(); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "start reverse proxy engine", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := p.readPid(); ok {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return flecserr.New(flecserr.KindRuntimeFailure, "reverse proxy engine did not write a pid file in time")
}

// Reload sends SIGHUP, the graceful-reconfigure signal (spec.md §4.4).
func (p *Process) Reload() error { return p.signal(syscall.SIGHUP) }

// StopGraceful sends SIGQUIT, the graceful-stop signal.
func (p *Process) StopGraceful() error { return p.signal(syscall.SIGQUIT) }

// StopFast sends SIGINT, the fast-stop signal.
func (p *Process) StopFast() error { return p.signal(syscall.SIGINT) }

// Kill sends SIGKILL unconditionally.
func (p *Process) Kill() error { return p.signal(syscall.SIGKILL) }

func (p *Process) signal(sig syscall.Signal) error {
	pid, ok := p.readPid()
	if !ok {
		return flecserr.New(flecserr.KindNotFound, "reverse proxy engine is not running (no pid file)")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("find reverse proxy process %d", pid), err)
	}
	if err := proc.Signal(sig); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("signal reverse proxy process %d", pid), err)
	}
	return nil
}
