package power

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSysfsRoot is where the Linux kernel exposes power supply devices.
const DefaultSysfsRoot = "/sys/class/power_supply"

// SysfsProbe reads the kernel's power_supply class to decide whether a mains
// adapter is online. The root is injectable so tests can run against a
// temporary directory tree.
type SysfsProbe struct {
	Root string
}

// NewSysfsProbe creates a probe over root; an empty root selects
// DefaultSysfsRoot.
func NewSysfsProbe(root string) *SysfsProbe {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsProbe{Root: root}
}

// OnACPower returns true when any mains supply reports online, or when the
// host exposes no battery at all (a desktop is always on AC).
func (p *SysfsProbe) OnACPower(ctx context.Context) (bool, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		if os.IsNotExist(err) {
			// No power supply information at all; treat as AC.
			return true, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", p.Root, err)
	}

	sawBattery := false
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		supplyDir := filepath.Join(p.Root, entry.Name())
		supplyType := readSysfsValue(filepath.Join(supplyDir, "type"))
		switch supplyType {
		case "Mains":
			if readSysfsValue(filepath.Join(supplyDir, "online")) == "1" {
				return true, nil
			}
		case "Battery":
			sawBattery = true
		}
	}

	if !sawBattery {
		return true, nil
	}
	return false, nil
}

func readSysfsValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
