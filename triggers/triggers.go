// Package triggers implements the entry points the OS trigger registrations
// invoke: AC reconnect, battery switch, and process exit. Each handler runs
// once, inside its own short-lived invocation, and isolates per-application
// failures so one misbehaving application never blocks its siblings.
package triggers

import (
	"context"
	"log/slog"

	"github.com/tomyedwab/powerminder/audit"
	"github.com/tomyedwab/powerminder/config"
	"github.com/tomyedwab/powerminder/lifecycle"
)

// Controller is the slice of the lifecycle controller the handlers consume.
type Controller interface {
	ShouldResume(app config.Application) bool
	IsTracked(app config.Application) bool
	HasPendingStop(app config.Application) bool
	IsProcessRunning(ctx context.Context, app config.Application) (bool, error)
	StartApplication(ctx context.Context, app config.Application) (lifecycle.StartOutcome, error)
	SuspendApplication(ctx context.Context, app config.Application) (lifecycle.SuspendOutcome, error)
	HandleProcessExit(ctx context.Context, app config.Application) (lifecycle.ExitOutcome, error)
}

// Handlers wires the configured applications to the lifecycle controller.
type Handlers struct {
	cfg    *config.Config
	ctl    Controller
	trail  *audit.Trail // Optional; nil disables the audit trail.
	logger *slog.Logger
}

// NewHandlers creates the trigger handlers. trail may be nil.
func NewHandlers(cfg *config.Config, ctl Controller, trail *audit.Trail, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cfg:    cfg,
		ctl:    ctl,
		trail:  trail,
		logger: logger.With("component", "Triggers"),
	}
}

// OnACReconnect starts every enabled application whose running marker says it
// should be resumed. A reconcile sweep runs first so an application manually
// closed since the last observed exit is unmarked before the resume
// decisions. Applications without the marker are skipped without error;
// per-application failures are logged and do not stop the batch.
func (h *Handlers) OnACReconnect(ctx context.Context) {
	h.logger.Info("AC power reconnected")
	h.OnExitSweep(ctx)
	for _, app := range h.cfg.EnabledApplications() {
		if !h.ctl.ShouldResume(app) {
			h.logger.Debug("Not marked for resume, skipping", "application", app.Name)
			continue
		}
		outcome, err := h.ctl.StartApplication(ctx, app)
		if err != nil {
			h.logger.Error("Failed to resume application", "application", app.Name, "error", err)
			h.record(audit.EventFailure, app.Name, 0, err.Error())
			continue
		}
		h.logger.Info("Resume handled", "application", app.Name, "outcome", outcome.String())
		switch outcome {
		case lifecycle.Started:
			h.record(audit.EventStarted, app.Name, 0, "resumed on AC reconnect")
		case lifecycle.AlreadyRunning:
			h.record(audit.EventAlreadyRunning, app.Name, 0, "")
		case lifecycle.SkippedPowerSource:
			h.record(audit.EventSkippedPowerSource, app.Name, 0, "")
		}
	}
}

// OnBatterySwitch suspends every enabled application, after a reconcile
// sweep settles any exits nobody observed since the last trigger.
// Per-application failures are logged and do not stop the batch.
func (h *Handlers) OnBatterySwitch(ctx context.Context) {
	h.logger.Info("Switched to battery power")
	h.OnExitSweep(ctx)
	for _, app := range h.cfg.EnabledApplications() {
		outcome, err := h.ctl.SuspendApplication(ctx, app)
		if err != nil {
			h.logger.Error("Failed to suspend application", "application", app.Name, "error", err)
			h.record(audit.EventFailure, app.Name, 0, err.Error())
			continue
		}
		h.logger.Info("Suspend handled", "application", app.Name, "outcome", outcome.String())
		switch outcome {
		case lifecycle.Stopped:
			h.record(audit.EventSuspended, app.Name, 0, "battery switch")
		case lifecycle.NotRunning:
			h.record(audit.EventNotRunning, app.Name, 0, "")
		}
	}
}

// OnProcessExit classifies a process termination for the matching enabled
// application. Exits of unconfigured processes are silently successful.
func (h *Handlers) OnProcessExit(ctx context.Context, processName string, pid int) {
	app := h.cfg.FindByProcessName(processName)
	if app == nil {
		h.logger.Debug("Exit of unmanaged process, ignoring", "process", processName, "pid", pid)
		return
	}

	h.handleExit(ctx, *app, pid)
}

// OnExitSweep reconciles every tracked application against the live process
// table. It serves exit triggers that cannot name the terminated process: a
// tracked application whose process is gone without a pending controlled
// stop is handled as a manual close. Applications under a pending stop are
// expected to be gone and are left untouched, so the sweep can run any
// number of times without an application losing its resume eligibility.
func (h *Handlers) OnExitSweep(ctx context.Context) {
	for _, app := range h.cfg.EnabledApplications() {
		if !h.ctl.IsTracked(app) {
			continue
		}
		running, err := h.ctl.IsProcessRunning(ctx, app)
		if err != nil {
			h.logger.Error("Process lookup failed during exit sweep", "application", app.Name, "error", err)
			continue
		}
		if running {
			continue
		}
		if h.ctl.HasPendingStop(app) {
			h.logger.Debug("Controlled stop awaiting resume, leaving markers", "application", app.Name)
			continue
		}
		h.handleExit(ctx, app, 0)
	}
}

func (h *Handlers) handleExit(ctx context.Context, app config.Application, pid int) {
	outcome, err := h.ctl.HandleProcessExit(ctx, app)
	if err != nil {
		h.logger.Error("Exit handling incomplete", "application", app.Name, "pid", pid, "error", err)
		h.record(audit.EventFailure, app.Name, pid, err.Error())
		return
	}
	h.logger.Info("Exit handled", "application", app.Name, "pid", pid, "outcome", outcome.String())
	switch outcome {
	case lifecycle.Preserved:
		h.record(audit.EventExitPreserved, app.Name, pid, "")
	case lifecycle.ManualCloseDetected:
		h.record(audit.EventManualClose, app.Name, pid, "")
	}
}

// record appends to the audit trail when one is configured. Audit failures
// are logged and never abort trigger handling.
func (h *Handlers) record(eventType audit.EventType, application string, pid int, detail string) {
	if h.trail == nil {
		return
	}
	if err := h.trail.Record(eventType, application, pid, detail); err != nil {
		h.logger.Warn("Failed to write audit event", "application", application, "error", err)
	}
}
