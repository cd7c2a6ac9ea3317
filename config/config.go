// Package config loads and validates the powerminder configuration file.
// The configuration is read once per invocation; the lifecycle core treats
// it as immutable input.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultGracefulTimeout is the number of seconds an application is
	// given to exit after a graceful stop request before it is force-stopped.
	DefaultGracefulTimeout = 10
)

// Application describes one managed application. It is owned by the
// configuration file and read-only to the lifecycle core.
type Application struct {
	Name             string // Unique key; also used to derive marker file names.
	Enabled          bool   // Disabled applications are skipped by every trigger.
	ExecutablePath   string // Path to the executable to launch on resume.
	ProcessName      string // Process name (no extension) used for matching and stopping.
	Arguments        string // Optional command-line arguments, space separated.
	WorkingDirectory string // Optional working directory for the launched process.
	GracefulTimeout  int    // Seconds to wait for a graceful exit before force-stop.
	CheckPowerSource bool   // When true, never start the application on battery power.
}

// GracefulStopWindow returns the graceful timeout as a duration.
func (a Application) GracefulStopWindow() time.Duration {
	return time.Duration(a.GracefulTimeout) * time.Second
}

// Config is the top-level configuration for a powerminder invocation.
type Config struct {
	StateDir     string        // Directory holding the per-application marker files.
	AuditDBPath  string        // Path to the sqlite audit trail database.
	LogLevel     string        // Minimum log level: debug, info, warn, error.
	Applications []Application // All configured applications, enabled or not.
}

// EnabledApplications returns only the applications with Enabled set.
func (c *Config) EnabledApplications() []Application {
	enabled := make([]Application, 0, len(c.Applications))
	for _, app := range c.Applications {
		if app.Enabled {
			enabled = append(enabled, app)
		}
	}
	return enabled
}

// FindByProcessName returns the enabled application whose ProcessName exactly
// equals name, or nil if no enabled application matches.
func (c *Config) FindByProcessName(name string) *Application {
	for i := range c.Applications {
		app := &c.Applications[i]
		if app.Enabled && app.ProcessName == name {
			return app
		}
	}
	return nil
}

// fileConfig mirrors the on-disk YAML layout. Optional booleans are pointers
// so that an absent key can be distinguished from an explicit false.
type fileConfig struct {
	StateDir     string            `yaml:"stateDir"`
	AuditDB      string            `yaml:"auditDb"`
	LogLevel     string            `yaml:"logLevel"`
	Applications []fileApplication `yaml:"applications"`
}

type fileApplication struct {
	Name             string `yaml:"name"`
	Enabled          *bool  `yaml:"enabled"`
	ExecutablePath   string `yaml:"executablePath"`
	ProcessName      string `yaml:"processName"`
	Arguments        string `yaml:"arguments"`
	WorkingDirectory string `yaml:"workingDirectory"`
	GracefulTimeout  int    `yaml:"gracefulTimeout"`
	CheckPowerSource *bool  `yaml:"checkPowerSource"`
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a validated Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{
		StateDir:    raw.StateDir,
		AuditDBPath: raw.AuditDB,
		LogLevel:    raw.LogLevel,
	}
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir()
	}
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = filepath.Join(cfg.StateDir, "audit.db")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	seen := make(map[string]bool)
	for i, rawApp := range raw.Applications {
		app, err := normalizeApplication(rawApp)
		if err != nil {
			return nil, fmt.Errorf("application %d: %w", i, err)
		}
		if seen[app.Name] {
			return nil, fmt.Errorf("duplicate application name %q", app.Name)
		}
		seen[app.Name] = true
		cfg.Applications = append(cfg.Applications, app)
	}

	return cfg, nil
}

func normalizeApplication(raw fileApplication) (Application, error) {
	if raw.Name == "" {
		return Application{}, fmt.Errorf("missing required field 'name'")
	}
	if raw.ExecutablePath == "" {
		return Application{}, fmt.Errorf("application %q: missing required field 'executablePath'", raw.Name)
	}
	if raw.ProcessName == "" {
		return Application{}, fmt.Errorf("application %q: missing required field 'processName'", raw.Name)
	}
	if raw.GracefulTimeout < 0 {
		return Application{}, fmt.Errorf("application %q: gracefulTimeout must not be negative", raw.Name)
	}

	app := Application{
		Name:             raw.Name,
		Enabled:          true,
		ExecutablePath:   raw.ExecutablePath,
		ProcessName:      raw.ProcessName,
		Arguments:        raw.Arguments,
		WorkingDirectory: raw.WorkingDirectory,
		GracefulTimeout:  raw.GracefulTimeout,
		CheckPowerSource: true,
	}
	if raw.Enabled != nil {
		app.Enabled = *raw.Enabled
	}
	if raw.CheckPowerSource != nil {
		app.CheckPowerSource = *raw.CheckPowerSource
	}
	if app.GracefulTimeout == 0 {
		app.GracefulTimeout = DefaultGracefulTimeout
	}
	return app, nil
}

// DefaultPath returns the conventional location of the configuration file
// for the current user.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "powerminder.yaml"
	}
	return filepath.Join(dir, "powerminder", "config.yaml")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "powerminder-state"
	}
	return filepath.Join(dir, "powerminder", "state")
}
