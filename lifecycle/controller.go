// Package lifecycle implements the per-application suspend/resume state
// machine.
//
// Each operation runs inside an independent, short-lived invocation with no
// shared memory; the durable markers in the state store are the only
// coordination between a power-event trigger and a process-exit trigger.
// Per application the machine is:
//
//	Idle (no markers)
//	  -> start succeeds ->            TrackedRunning  (running marker)
//	  -> suspend ->                   PendingControlledStop (running + ignore-next-exit)
//	  -> exit observed ->             ResumeEligible  (running marker, process gone)
//	  -> AC start succeeds ->         TrackedRunning
//
// From TrackedRunning, an exit observed without a prior suspend is a manual
// close and returns the application to Idle.
//
// The one ordering rule everything depends on: the ignore-next-exit token is
// durably on disk before any stop request is issued. A racing exit observer
// can then never misclassify a controlled stop as a manual close.
//
// A token a per-process exit observer consumed is gone immediately; on hosts
// whose exit notifications cannot name the process, the token instead stays
// on disk through any number of reconcile sweeps and is cleared when the
// application is next resumed. Either way the running marker survives until
// an unguarded exit is observed.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomyedwab/powerminder/config"
	"github.com/tomyedwab/powerminder/power"
	"github.com/tomyedwab/powerminder/process"
	"github.com/tomyedwab/powerminder/state"
)

const (
	defaultSettleDelay  = 500 * time.Millisecond
	defaultPollInterval = 1 * time.Second
)

// Controller executes the lifecycle operations for one invocation. It holds
// no mutable state of its own; every operation is a function over the marker
// store and the live process table.
type Controller struct {
	store  *state.Store
	procs  process.Capability
	power  power.Probe
	logger *slog.Logger

	settleDelay  time.Duration
	pollInterval time.Duration
	sleep        func(time.Duration)
}

// Config holds construction options for a Controller.
type Config struct {
	Store     *state.Store       // Required.
	Processes process.Capability // Required.
	Power     power.Probe        // Required.
	Logger    *slog.Logger       // Optional, defaults to slog.Default().

	SettleDelay  time.Duration       // Optional, defaults to 500ms.
	PollInterval time.Duration       // Optional, defaults to 1s.
	Sleep        func(time.Duration) // Optional, defaults to time.Sleep. Tests substitute a fake.
}

// NewController creates a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Processes == nil {
		return nil, fmt.Errorf("process capability is required")
	}
	if cfg.Power == nil {
		return nil, fmt.Errorf("power probe is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = defaultPollInterval
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Controller{
		store:        cfg.Store,
		procs:        cfg.Processes,
		power:        cfg.Power,
		logger:       logger.With("component", "LifecycleController"),
		settleDelay:  settle,
		pollInterval: poll,
		sleep:        sleep,
	}, nil
}

// ShouldResume reports whether the application should be auto-resumed when AC
// power returns. It has no side effects.
func (c *Controller) ShouldResume(app config.Application) bool {
	return c.store.HasMarker(app.Name, state.MarkerRunning)
}

// IsTracked reports whether app currently carries any lifecycle marker.
func (c *Controller) IsTracked(app config.Application) bool {
	return c.store.HasMarker(app.Name, state.MarkerRunning) ||
		c.store.HasMarker(app.Name, state.MarkerIgnoreNextExit)
}

// IsProcessRunning reports whether app's configured process is currently
// alive.
func (c *Controller) IsProcessRunning(ctx context.Context, app config.Application) (bool, error) {
	_, running, err := c.procs.FindProcess(ctx, app.ProcessName)
	return running, err
}

// HasPendingStop reports whether app carries an unconsumed controlled-stop
// token. A dead process under a pending stop is expected to be dead and must
// never be classified as a manual close.
func (c *Controller) HasPendingStop(app config.Application) bool {
	return c.store.HasMarker(app.Name, state.MarkerIgnoreNextExit)
}

// StartApplication starts app if it is eligible. A non-nil error always
// accompanies StartFailed and never any other outcome; no marker state is
// mutated on a failed start.
func (c *Controller) StartApplication(ctx context.Context, app config.Application) (StartOutcome, error) {
	logger := c.logger.With("application", app.Name)

	if app.CheckPowerSource {
		onAC, err := c.power.OnACPower(ctx)
		if err != nil {
			return StartFailed, fmt.Errorf("power source check for %q failed: %w", app.Name, err)
		}
		if !onAC {
			logger.Info("Skipping start, host is on battery power")
			return SkippedPowerSource, nil
		}
	}

	pid, running, err := c.procs.FindProcess(ctx, app.ProcessName)
	if err != nil {
		return StartFailed, fmt.Errorf("process lookup for %q failed: %w", app.Name, err)
	}
	if running {
		// Repair the running marker if a previous invocation lost it.
		if !c.store.HasMarker(app.Name, state.MarkerRunning) {
			if err := c.store.SetMarker(app.Name, state.MarkerRunning, state.Payload{PID: pid}); err != nil {
				return StartFailed, err
			}
		}
		logger.Info("Application already running", "pid", pid)
		return AlreadyRunning, nil
	}

	pid, err = c.procs.Start(ctx, process.StartSpec{
		ExecutablePath:   app.ExecutablePath,
		Arguments:        app.Arguments,
		WorkingDirectory: app.WorkingDirectory,
	})
	if err != nil {
		return StartFailed, fmt.Errorf("failed to start %q: %w", app.Name, err)
	}

	// Give the process a moment to settle, then make sure it did not exit
	// right away. An immediate exit is a failed start and must not leave a
	// running marker behind.
	c.sleep(c.settleDelay)
	_, running, err = c.procs.FindProcess(ctx, app.ProcessName)
	if err != nil {
		return StartFailed, fmt.Errorf("start verification for %q failed: %w", app.Name, err)
	}
	if !running {
		logger.Warn("Process exited during settle delay", "pid", pid)
		return StartFailed, fmt.Errorf("start of %q: %w", app.Name, ErrStartVerification)
	}

	if err := c.store.SetMarker(app.Name, state.MarkerRunning, state.Payload{PID: pid}); err != nil {
		// The process is up but untracked; surface the write failure so the
		// trigger can log it. The next start attempt repairs the marker.
		logger.Error("Process started but running marker could not be written", "pid", pid, "error", err)
		return StartFailed, err
	}

	// A stop token nobody consumed referred to the previous, now replaced
	// process; the resume supersedes it.
	c.store.ClearMarker(app.Name, state.MarkerIgnoreNextExit)

	logger.Info("Application started", "pid", pid)
	return Started, nil
}

// SuspendApplication performs a controlled stop of app for a battery switch.
// The ignore-next-exit token is durably written before the stop request goes
// out; on any failure in the stop sequence the token is cleared again so a
// later manual close is still detected.
func (c *Controller) SuspendApplication(ctx context.Context, app config.Application) (SuspendOutcome, error) {
	logger := c.logger.With("application", app.Name)

	pid, running, err := c.procs.FindProcess(ctx, app.ProcessName)
	if err != nil {
		return SuspendFailed, fmt.Errorf("process lookup for %q failed: %w", app.Name, err)
	}
	if !running {
		// Nothing to stop. An orphan token without a running marker is
		// leftover from an interrupted suspend and can go; a token alongside
		// the running marker records a controlled stop whose exit no observer
		// consumed yet and must stay, or the application would lose its
		// resume eligibility.
		if !c.store.HasMarker(app.Name, state.MarkerRunning) {
			c.store.ClearMarker(app.Name, state.MarkerIgnoreNextExit)
		}
		logger.Info("Application not running, nothing to suspend")
		return NotRunning, nil
	}

	// Ordering contract: the token must exist on disk before the stop request
	// is sent, or a racing exit observer could see the exit first and treat
	// it as a manual close.
	if err := c.store.SetMarker(app.Name, state.MarkerIgnoreNextExit, state.Payload{PID: pid}); err != nil {
		return SuspendFailed, err
	}

	if err := c.stopWithEscalation(ctx, logger, app, pid); err != nil {
		c.store.ClearMarker(app.Name, state.MarkerIgnoreNextExit)
		return SuspendFailed, err
	}

	// Keep the application eligible for resume once AC power returns.
	if !c.store.HasMarker(app.Name, state.MarkerRunning) {
		if err := c.store.SetMarker(app.Name, state.MarkerRunning, state.Payload{PID: pid}); err != nil {
			c.store.ClearMarker(app.Name, state.MarkerIgnoreNextExit)
			return SuspendFailed, err
		}
	}

	logger.Info("Application suspended", "pid", pid)
	return Stopped, nil
}

// stopWithEscalation requests a graceful stop, polls for exit up to the
// application's graceful window, and force-stops exactly once if the process
// is still alive afterwards.
func (c *Controller) stopWithEscalation(ctx context.Context, logger *slog.Logger, app config.Application, pid int) error {
	if err := c.procs.RequestStop(ctx, pid); err != nil {
		return fmt.Errorf("graceful stop request for %q failed: %w", app.Name, err)
	}

	window := app.GracefulStopWindow()
	for waited := time.Duration(0); waited < window; waited += c.pollInterval {
		c.sleep(c.pollInterval)
		alive, err := c.procs.IsAlive(ctx, pid)
		if err != nil {
			return fmt.Errorf("exit poll for %q failed: %w", app.Name, err)
		}
		if !alive {
			logger.Info("Process exited gracefully", "pid", pid)
			return nil
		}
	}

	logger.Warn("Process did not exit within graceful window, force-stopping", "pid", pid, "window", window)
	if err := c.procs.Kill(ctx, pid); err != nil {
		return fmt.Errorf("%w for %q (pid %d): %v", ErrForceStopFailed, app.Name, pid, err)
	}
	return nil
}

// HandleProcessExit classifies an observed exit of app's process. An exit
// guarded by a pending ignore-next-exit token is a controlled suspend; the
// token is consumed and the running marker preserved. An unguarded exit is a
// manual close and clears the running marker. An application with no markers
// at all is untracked and the call is a no-op.
func (c *Controller) HandleProcessExit(ctx context.Context, app config.Application) (ExitOutcome, error) {
	logger := c.logger.With("application", app.Name)

	if c.store.HasMarker(app.Name, state.MarkerIgnoreNextExit) {
		if !c.store.ClearMarker(app.Name, state.MarkerIgnoreNextExit) {
			return CleanupFailed, fmt.Errorf("%w: %s marker for %q", ErrStateRemove, state.MarkerIgnoreNextExit, app.Name)
		}
		logger.Info("Controlled suspend exit observed, resume eligibility preserved")
		return Preserved, nil
	}

	if !c.store.HasMarker(app.Name, state.MarkerRunning) {
		// Untracked application; nothing to record.
		return ManualCloseDetected, nil
	}

	if !c.store.ClearMarker(app.Name, state.MarkerRunning) {
		return CleanupFailed, fmt.Errorf("%w: %s marker for %q", ErrStateRemove, state.MarkerRunning, app.Name)
	}
	logger.Info("Manual close detected, application will not auto-resume")
	return ManualCloseDetected, nil
}
