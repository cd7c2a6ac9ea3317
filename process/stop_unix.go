//go:build !windows

package process

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"

	gops "github.com/shirou/gopsutil/v3/process"
)

// requestStop sends SIGTERM, the conventional polite shutdown request.
func requestStop(ctx context.Context, pid int) error {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := p.SendSignalWithContext(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}

// configureDetached puts the child in its own session so it is not torn down
// when the short-lived powerminder invocation exits.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
