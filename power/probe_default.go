//go:build !windows

package power

// NewSystemProbe returns the platform probe for the current host.
func NewSystemProbe() Probe {
	return NewSysfsProbe("")
}
