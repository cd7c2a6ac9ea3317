package power

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSupply(t *testing.T, root, name, supplyType, online string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte(supplyType+"\n"), 0o644))
	if online != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "online"), []byte(online+"\n"), 0o644))
	}
}

func TestSysfsProbeOnAC(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "Mains", "1")
	writeSupply(t, root, "BAT0", "Battery", "")

	onAC, err := NewSysfsProbe(root).OnACPower(context.Background())
	require.NoError(t, err)
	assert.True(t, onAC)
}

func TestSysfsProbeOnBattery(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "Mains", "0")
	writeSupply(t, root, "BAT0", "Battery", "")

	onAC, err := NewSysfsProbe(root).OnACPower(context.Background())
	require.NoError(t, err)
	assert.False(t, onAC)
}

func TestSysfsProbeNoBatteryMeansAC(t *testing.T) {
	// A desktop without a battery device is always on mains power.
	root := t.TempDir()

	onAC, err := NewSysfsProbe(root).OnACPower(context.Background())
	require.NoError(t, err)
	assert.True(t, onAC)
}

func TestSysfsProbeMissingRootMeansAC(t *testing.T) {
	probe := NewSysfsProbe(filepath.Join(t.TempDir(), "does-not-exist"))
	onAC, err := probe.OnACPower(context.Background())
	require.NoError(t, err)
	assert.True(t, onAC)
}
