//go:build !linux && !windows

package install

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

type unsupportedRegistrar struct{}

// NewSystemRegistrar returns the registrar for this platform.
func NewSystemRegistrar(logger *slog.Logger) Registrar {
	return unsupportedRegistrar{}
}

func (unsupportedRegistrar) Register(ctx context.Context, execPath string) error {
	return fmt.Errorf("trigger registration is not supported on %s", runtime.GOOS)
}

func (unsupportedRegistrar) Unregister(ctx context.Context) error {
	return fmt.Errorf("trigger registration is not supported on %s", runtime.GOOS)
}

func (unsupportedRegistrar) IsRegistered() (bool, error) {
	return false, nil
}
