//go:build windows

package process

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// requestStop issues a polite termination request (no /F) so the application
// gets a chance to shut down cleanly before the force-stop escalation.
func requestStop(ctx context.Context, pid int) error {
	cmd := exec.CommandContext(ctx, "taskkill", "/PID", strconv.Itoa(pid))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("taskkill for pid %d failed: %w (%s)", pid, err, out)
	}
	return nil
}

// configureDetached starts the child in a new process group so console
// signals aimed at powerminder do not reach it.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}
