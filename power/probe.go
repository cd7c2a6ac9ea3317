// Package power answers the single question the lifecycle controller asks
// before starting an application: is the host on AC power right now?
package power

import "context"

// Probe reports the current power source.
type Probe interface {
	// OnACPower returns true when the host is running on mains power.
	OnACPower(ctx context.Context) (bool, error)
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc func(ctx context.Context) (bool, error)

// OnACPower calls f.
func (f ProbeFunc) OnACPower(ctx context.Context) (bool, error) {
	return f(ctx)
}
