package lifecycle

import "errors"

// Sentinel errors for the failure classes a single application operation can
// produce. Callers classify with errors.Is; persistence failures additionally
// carry a *state.WriteError reachable through errors.As.
var (
	// ErrStartVerification means the process was spawned but had already
	// exited again by the end of the settle delay.
	ErrStartVerification = errors.New("process exited immediately after start")

	// ErrForceStopFailed means the process survived the graceful window and
	// the single force-stop attempt also failed. Markers are left in their
	// pre-stop state.
	ErrForceStopFailed = errors.New("force stop failed")

	// ErrStateRemove means a marker removal failed after retries. Non-fatal;
	// the stale marker is a known, bounded drift risk.
	ErrStateRemove = errors.New("failed to remove state marker")
)
