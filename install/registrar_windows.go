//go:build windows

package install

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Task names registered with the Windows Task Scheduler.
const (
	taskOnPowerChange = "powerminder-power-change"
	taskOnExit        = "powerminder-on-exit"
)

// Event queries the scheduled tasks trigger on. Kernel-Power event 105 fires
// on any power-source change; the on-power-change subcommand probes the
// current source and dispatches. Process terminations come from Security
// event 4689, which requires process-termination auditing to be enabled (an
// administrator concern outside this tool). schtasks cannot forward event
// data to the command line, so the exit task runs a bare on-exit sweep that
// reconciles every tracked application.
const (
	powerEventQuery   = `*[System[Provider[@Name='Microsoft-Windows-Kernel-Power'] and EventID=105]]`
	exitEventQuery    = `*[System[EventID=4689]]`
	powerEventChannel = "System"
	exitEventChannel  = "Security"
)

// schtasksRegistrar manages the event-triggered scheduled tasks that invoke
// the powerminder entry points.
type schtasksRegistrar struct {
	logger *slog.Logger
}

// NewSystemRegistrar returns the registrar for this platform.
func NewSystemRegistrar(logger *slog.Logger) Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &schtasksRegistrar{logger: logger.With("component", "Registrar")}
}

func (r *schtasksRegistrar) Register(ctx context.Context, execPath string) error {
	tasks := []struct {
		name    string
		channel string
		query   string
		command string
	}{
		{taskOnPowerChange, powerEventChannel, powerEventQuery, fmt.Sprintf(`"%s" on-power-change`, execPath)},
		{taskOnExit, exitEventChannel, exitEventQuery, fmt.Sprintf(`"%s" on-exit`, execPath)},
	}
	for _, task := range tasks {
		args := []string{
			"/Create", "/F",
			"/TN", task.name,
			"/SC", "ONEVENT",
			"/EC", task.channel,
			"/MO", task.query,
			"/TR", task.command,
			"/RL", "HIGHEST",
		}
		cmd := exec.CommandContext(ctx, "schtasks", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to create scheduled task %s: %w (%s)", task.name, err, out)
		}
		r.logger.Info("Scheduled task registered", "task", task.name)
	}
	return nil
}

func (r *schtasksRegistrar) Unregister(ctx context.Context) error {
	for _, name := range []string{taskOnPowerChange, taskOnExit} {
		cmd := exec.CommandContext(ctx, "schtasks", "/Delete", "/F", "/TN", name)
		if out, err := cmd.CombinedOutput(); err != nil {
			// Deleting a task that does not exist is fine.
			r.logger.Debug("Scheduled task delete skipped", "task", name, "output", string(out))
			continue
		}
		r.logger.Info("Scheduled task removed", "task", name)
	}
	return nil
}

func (r *schtasksRegistrar) IsRegistered() (bool, error) {
	cmd := exec.Command("schtasks", "/Query", "/TN", taskOnPowerChange)
	if err := cmd.Run(); err != nil {
		return false, nil
	}
	return true, nil
}
