// Package install registers and removes the OS triggers that invoke the
// powerminder entry points: power-source change notifications and
// process-termination notifications. The lifecycle core never calls this
// package; only the install and uninstall subcommands do.
package install

import "context"

// Registrar manages the platform trigger registrations.
type Registrar interface {
	// Register installs the OS triggers so that power-source changes and
	// process terminations invoke the powerminder binary at execPath.
	Register(ctx context.Context, execPath string) error

	// Unregister removes all previously installed triggers. Removing
	// triggers that are not installed is not an error.
	Unregister(ctx context.Context) error

	// IsRegistered reports whether the triggers are currently installed.
	IsRegistered() (bool, error)
}
