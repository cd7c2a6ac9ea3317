package lifecycle

// StartOutcome is the result of a StartApplication operation.
type StartOutcome int

const (
	// StartFailed means the start attempt errored; no marker state was mutated.
	StartFailed StartOutcome = iota
	// Started means the process was launched and verified alive.
	Started
	// AlreadyRunning means the process was already alive; the running marker
	// was repaired if missing.
	AlreadyRunning
	// SkippedPowerSource means the application requires AC power and the host
	// is on battery; nothing was done.
	SkippedPowerSource
)

// String returns a human-readable representation of the outcome.
func (o StartOutcome) String() string {
	switch o {
	case StartFailed:
		return "Failed"
	case Started:
		return "Started"
	case AlreadyRunning:
		return "AlreadyRunning"
	case SkippedPowerSource:
		return "SkippedPowerSource"
	default:
		return "Unknown"
	}
}

// SuspendOutcome is the result of a SuspendApplication operation.
type SuspendOutcome int

const (
	// SuspendFailed means the stop sequence errored; the ignore-next-exit
	// token was cleared so a later manual close is still detected.
	SuspendFailed SuspendOutcome = iota
	// Stopped means the process exited, gracefully or after one force-stop.
	Stopped
	// NotRunning means there was no live process; any stale ignore-next-exit
	// token was cleared.
	NotRunning
)

// String returns a human-readable representation of the outcome.
func (o SuspendOutcome) String() string {
	switch o {
	case SuspendFailed:
		return "Failed"
	case Stopped:
		return "Stopped"
	case NotRunning:
		return "NotRunning"
	default:
		return "Unknown"
	}
}

// ExitOutcome is the result of a HandleProcessExit operation.
type ExitOutcome int

const (
	// CleanupFailed means a marker that should have been cleared could not be
	// removed after retries. Non-fatal but may leave bounded state drift.
	CleanupFailed ExitOutcome = iota
	// Preserved means the exit was an expected controlled suspend; the
	// application stays eligible for auto-resume.
	Preserved
	// ManualCloseDetected means the exit had no pending suspend token; the
	// application was unmarked for auto-resume. Also returned, with no
	// observable effect, for applications that carry no markers at all.
	ManualCloseDetected
)

// String returns a human-readable representation of the outcome.
func (o ExitOutcome) String() string {
	switch o {
	case CleanupFailed:
		return "CleanupFailed"
	case Preserved:
		return "Preserved"
	case ManualCloseDetected:
		return "ManualCloseDetected"
	default:
		return "Unknown"
	}
}
