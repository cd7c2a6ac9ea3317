//go:build linux

package install

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

const udevRulesPath = "/etc/udev/rules.d/99-powerminder.rules"

// udevRegistrar installs a udev rule that fires the powerminder entry points
// when the power_supply subsystem reports an AC adapter change. Process-exit
// notification has no generic kernel-wide hook, so only the power triggers
// are registered; manual closes are caught by the reconcile sweep each power
// trigger runs over the process table before acting on its applications.
type udevRegistrar struct {
	rulesPath string
	logger    *slog.Logger
}

// NewSystemRegistrar returns the registrar for this platform.
func NewSystemRegistrar(logger *slog.Logger) Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &udevRegistrar{
		rulesPath: udevRulesPath,
		logger:    logger.With("component", "Registrar"),
	}
}

func udevRules(execPath string) string {
	return fmt.Sprintf(`# Installed by powerminder. Do not edit; run "powerminder uninstall" to remove.
SUBSYSTEM=="power_supply", ATTR{type}=="Mains", ATTR{online}=="1", RUN+="%s on-ac"
SUBSYSTEM=="power_supply", ATTR{type}=="Mains", ATTR{online}=="0", RUN+="%s on-battery"
`, execPath, execPath)
}

func (r *udevRegistrar) Register(ctx context.Context, execPath string) error {
	if err := os.WriteFile(r.rulesPath, []byte(udevRules(execPath)), 0o644); err != nil {
		return fmt.Errorf("failed to write udev rules %s: %w", r.rulesPath, err)
	}
	if err := r.reloadRules(ctx); err != nil {
		return err
	}
	r.logger.Info("Power triggers registered", "rules", r.rulesPath)
	return nil
}

func (r *udevRegistrar) Unregister(ctx context.Context) error {
	if err := os.Remove(r.rulesPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove udev rules %s: %w", r.rulesPath, err)
	}
	if err := r.reloadRules(ctx); err != nil {
		return err
	}
	r.logger.Info("Power triggers removed")
	return nil
}

func (r *udevRegistrar) IsRegistered() (bool, error) {
	_, err := os.Stat(r.rulesPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (r *udevRegistrar) reloadRules(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "udevadm", "control", "--reload-rules")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("udevadm reload failed: %w (%s)", err, out)
	}
	return nil
}
