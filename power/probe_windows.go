//go:build windows

package power

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// NewSystemProbe returns the platform probe for the current host.
func NewSystemProbe() Probe {
	return ProbeFunc(onACPowerWindows)
}

var (
	kernel32                 = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemPowerStatus = kernel32.NewProc("GetSystemPowerStatus")
)

// systemPowerStatus mirrors the Win32 SYSTEM_POWER_STATUS structure.
type systemPowerStatus struct {
	ACLineStatus        byte // 0 offline, 1 online, 255 unknown
	BatteryFlag         byte
	BatteryLifePercent  byte
	SystemStatusFlag    byte
	BatteryLifeTime     uint32
	BatteryFullLifeTime uint32
}

func onACPowerWindows(ctx context.Context) (bool, error) {
	var status systemPowerStatus
	ret, _, callErr := procGetSystemPowerStatus.Call(uintptr(unsafe.Pointer(&status)))
	if ret == 0 {
		return false, fmt.Errorf("GetSystemPowerStatus failed: %w", callErr)
	}
	switch status.ACLineStatus {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		// Unknown power state; err on the side of AC so applications are
		// not suspended spuriously.
		return true, nil
	}
}
