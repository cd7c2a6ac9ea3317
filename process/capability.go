// Package process implements the operating-system process capability the
// lifecycle controller depends on: finding a configured process by name,
// launching it detached from the short-lived powerminder invocation, and
// stopping it politely or forcibly.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	gops "github.com/shirou/gopsutil/v3/process"
)

// ErrExecutableNotFound is returned by Start when the configured executable
// path does not exist or is not runnable.
var ErrExecutableNotFound = errors.New("executable not found")

// StartSpec describes how to launch an application process.
type StartSpec struct {
	ExecutablePath   string
	Arguments        string // Space-separated; empty means no arguments.
	WorkingDirectory string // Empty means inherit the invocation's directory.
}

// Capability is the process-control contract consumed by the lifecycle
// controller. Implementations must be usable from independent short-lived
// invocations; no method may assume the process was started by this one.
type Capability interface {
	// FindProcess looks up a live process whose name matches processName.
	// It returns the PID and true when found.
	FindProcess(ctx context.Context, processName string) (int, bool, error)

	// IsAlive reports whether the process with the given PID still exists.
	IsAlive(ctx context.Context, pid int) (bool, error)

	// Start launches the process described by spec, detached, and returns
	// its PID. It never waits for the process to exit.
	Start(ctx context.Context, spec StartSpec) (int, error)

	// RequestStop asks the process to exit gracefully.
	RequestStop(ctx context.Context, pid int) error

	// Kill terminates the process unconditionally.
	Kill(ctx context.Context, pid int) error
}

// OSCapability implements Capability against the real operating system using
// gopsutil for process enumeration and os/exec for spawning.
type OSCapability struct {
	logger *slog.Logger
}

// NewOSCapability creates an OSCapability. A nil logger falls back to
// slog.Default().
func NewOSCapability(logger *slog.Logger) *OSCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSCapability{logger: logger.With("component", "ProcessCapability")}
}

// FindProcess scans the process table for a process named processName.
// On Windows the ".exe" suffix reported by the OS is tolerated.
func (c *OSCapability) FindProcess(ctx context.Context, processName string) (int, bool, error) {
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes can vanish mid-scan; skip them.
			continue
		}
		if matchesProcessName(name, processName) {
			return int(p.Pid), true, nil
		}
	}
	return 0, false, nil
}

func matchesProcessName(observed, configured string) bool {
	if observed == configured {
		return true
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(observed, configured) ||
			strings.EqualFold(observed, configured+".exe")
	}
	return false
}

// IsAlive reports whether a process with the given PID exists.
func (c *OSCapability) IsAlive(ctx context.Context, pid int) (bool, error) {
	exists, err := gops.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("failed to check pid %d: %w", pid, err)
	}
	return exists, nil
}

// Start launches the executable described by spec and releases it so the
// process outlives this invocation.
func (c *OSCapability) Start(ctx context.Context, spec StartSpec) (int, error) {
	if _, err := os.Stat(spec.ExecutablePath); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrExecutableNotFound, spec.ExecutablePath)
	}

	args := SplitArguments(spec.Arguments)
	cmd := exec.Command(spec.ExecutablePath, args...)
	cmd.Dir = spec.WorkingDirectory
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to spawn %s: %w", spec.ExecutablePath, err)
	}
	pid := cmd.Process.Pid

	// The invocation exits long before the application does; release the
	// handle instead of waiting on it.
	if err := cmd.Process.Release(); err != nil {
		c.logger.Warn("Failed to release process handle", "pid", pid, "error", err)
	}

	c.logger.Debug("Process started", "executable", spec.ExecutablePath, "pid", pid)
	return pid, nil
}

// RequestStop asks the process to exit gracefully. The mechanism is
// platform-specific: SIGTERM on unix, a polite taskkill on Windows.
func (c *OSCapability) RequestStop(ctx context.Context, pid int) error {
	return requestStop(ctx, pid)
}

// Kill terminates the process unconditionally.
func (c *OSCapability) Kill(ctx context.Context, pid int) error {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

// SplitArguments splits a configured argument string on whitespace. An empty
// string yields no arguments.
func SplitArguments(arguments string) []string {
	return strings.Fields(arguments)
}
