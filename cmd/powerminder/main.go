// Command powerminder suspends and resumes configured applications as the
// host moves between AC and battery power. Every subcommand is one
// short-lived invocation fired by an OS trigger; the marker files in the
// state directory carry all state between invocations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/powerminder/audit"
	"github.com/tomyedwab/powerminder/config"
	"github.com/tomyedwab/powerminder/install"
	"github.com/tomyedwab/powerminder/lifecycle"
	"github.com/tomyedwab/powerminder/power"
	"github.com/tomyedwab/powerminder/process"
	"github.com/tomyedwab/powerminder/state"
	"github.com/tomyedwab/powerminder/triggers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// invocation bundles everything one subcommand run needs.
type invocation struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *state.Store
	probe    power.Probe
	ctl      *lifecycle.Controller
	handlers *triggers.Handlers
	trail    *audit.Trail
	db       *sqlx.DB
}

func (inv *invocation) close() {
	if inv.db != nil {
		inv.db.Close()
	}
}

func setup(configPath string) (*invocation, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	store, err := state.NewStore(state.Options{Dir: cfg.StateDir, Logger: logger})
	if err != nil {
		return nil, err
	}

	inv := &invocation{
		cfg:    cfg,
		logger: logger,
		store:  store,
		probe:  power.NewSystemProbe(),
	}

	ctl, err := lifecycle.NewController(lifecycle.Config{
		Store:     store,
		Processes: process.NewOSCapability(logger),
		Power:     inv.probe,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	inv.ctl = ctl

	// The audit trail is best-effort; a missing or broken database never
	// blocks a trigger.
	if err := os.MkdirAll(filepath.Dir(cfg.AuditDBPath), 0o755); err == nil {
		if db, err := sqlx.Connect("sqlite3", cfg.AuditDBPath); err == nil {
			if trail, err := audit.NewTrail(db); err == nil {
				inv.trail = trail
				inv.db = db
			} else {
				logger.Warn("Audit trail unavailable", "error", err)
				db.Close()
			}
		} else {
			logger.Warn("Failed to open audit database", "path", cfg.AuditDBPath, "error", err)
		}
	}

	inv.handlers = triggers.NewHandlers(cfg, ctl, inv.trail, logger)
	return inv, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "powerminder",
		Short:         "Suspend and resume applications on power-source changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the configuration file")

	withInvocation := func(run func(ctx context.Context, inv *invocation, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			inv, err := setup(configPath)
			if err != nil {
				return err
			}
			defer inv.close()
			return run(cmd.Context(), inv, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "on-ac",
		Short: "Handle an AC reconnect: resume all marked applications",
		Args:  cobra.NoArgs,
		RunE: withInvocation(func(ctx context.Context, inv *invocation, args []string) error {
			inv.handlers.OnACReconnect(ctx)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "on-battery",
		Short: "Handle a switch to battery: suspend all enabled applications",
		Args:  cobra.NoArgs,
		RunE: withInvocation(func(ctx context.Context, inv *invocation, args []string) error {
			inv.handlers.OnBatterySwitch(ctx)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "on-power-change",
		Short: "Probe the current power source and dispatch on-ac or on-battery",
		Args:  cobra.NoArgs,
		RunE: withInvocation(func(ctx context.Context, inv *invocation, args []string) error {
			onAC, err := inv.probe.OnACPower(ctx)
			if err != nil {
				return fmt.Errorf("failed to probe power source: %w", err)
			}
			if onAC {
				inv.handlers.OnACReconnect(ctx)
			} else {
				inv.handlers.OnBatterySwitch(ctx)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "on-exit [processName [pid]]",
		Short: "Handle an observed process termination, or sweep all tracked applications when no process is named",
		Args:  cobra.RangeArgs(0, 2),
		RunE: withInvocation(func(ctx context.Context, inv *invocation, args []string) error {
			if len(args) == 0 {
				inv.handlers.OnExitSweep(ctx)
				return nil
			}
			pid := 0
			if len(args) == 2 {
				p, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid pid %q: %w", args[1], err)
				}
				pid = p
			}
			inv.handlers.OnProcessExit(ctx, args[0], pid)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show marker state and recent lifecycle events",
		Args:  cobra.NoArgs,
		RunE: withInvocation(func(ctx context.Context, inv *invocation, args []string) error {
			return printStatus(ctx, inv)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Register the OS triggers that invoke powerminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to resolve own executable path: %w", err)
			}
			return install.NewSystemRegistrar(slog.Default()).Register(cmd.Context(), execPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the OS trigger registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return install.NewSystemRegistrar(slog.Default()).Unregister(cmd.Context())
		},
	})

	return root
}

func printStatus(ctx context.Context, inv *invocation) error {
	procs := process.NewOSCapability(inv.logger)

	fmt.Printf("%-20s %-8s %-8s %-12s %s\n", "APPLICATION", "ENABLED", "RESUME", "PENDING-STOP", "LIVE")
	for _, app := range inv.cfg.Applications {
		resume := inv.store.HasMarker(app.Name, state.MarkerRunning)
		pending := inv.store.HasMarker(app.Name, state.MarkerIgnoreNextExit)

		live := "-"
		if pid, running, err := procs.FindProcess(ctx, app.ProcessName); err == nil && running {
			live = fmt.Sprintf("pid %d", pid)
		}
		fmt.Printf("%-20s %-8t %-8t %-12t %s\n", app.Name, app.Enabled, resume, pending, live)
	}

	if inv.trail == nil {
		return nil
	}
	events, err := inv.trail.GetRecentEvents(10)
	if err != nil {
		return fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(events) > 0 {
		fmt.Println("\nRecent events:")
		for _, event := range events {
			ts := time.Unix(event.Timestamp, 0).Local().Format(time.RFC3339)
			fmt.Printf("  %s %-22s %-20s %s\n", ts, event.EventType, event.Application, event.Detail)
		}
	}
	return nil
}
