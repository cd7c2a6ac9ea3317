package triggers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/powerminder/config"
	"github.com/tomyedwab/powerminder/lifecycle"
	"github.com/tomyedwab/powerminder/power"
	"github.com/tomyedwab/powerminder/process"
	"github.com/tomyedwab/powerminder/state"
)

// fakeController records which applications each operation was invoked for.
type fakeController struct {
	resumable map[string]bool
	tracked   map[string]bool
	pending   map[string]bool
	alive     map[string]bool

	started   []string
	suspended []string
	exited    []string

	startErr   map[string]error
	suspendErr map[string]error
	exitErr    map[string]error
	lookupErr  map[string]error
}

func newFakeController() *fakeController {
	return &fakeController{
		resumable:  make(map[string]bool),
		tracked:    make(map[string]bool),
		pending:    make(map[string]bool),
		alive:      make(map[string]bool),
		startErr:   make(map[string]error),
		suspendErr: make(map[string]error),
		exitErr:    make(map[string]error),
		lookupErr:  make(map[string]error),
	}
}

func (f *fakeController) ShouldResume(app config.Application) bool {
	return f.resumable[app.Name]
}

func (f *fakeController) IsTracked(app config.Application) bool {
	return f.tracked[app.Name]
}

func (f *fakeController) HasPendingStop(app config.Application) bool {
	return f.pending[app.Name]
}

func (f *fakeController) IsProcessRunning(ctx context.Context, app config.Application) (bool, error) {
	if err := f.lookupErr[app.Name]; err != nil {
		return false, err
	}
	return f.alive[app.Name], nil
}

func (f *fakeController) StartApplication(ctx context.Context, app config.Application) (lifecycle.StartOutcome, error) {
	f.started = append(f.started, app.Name)
	if err := f.startErr[app.Name]; err != nil {
		return lifecycle.StartFailed, err
	}
	return lifecycle.Started, nil
}

func (f *fakeController) SuspendApplication(ctx context.Context, app config.Application) (lifecycle.SuspendOutcome, error) {
	f.suspended = append(f.suspended, app.Name)
	if err := f.suspendErr[app.Name]; err != nil {
		return lifecycle.SuspendFailed, err
	}
	return lifecycle.Stopped, nil
}

func (f *fakeController) HandleProcessExit(ctx context.Context, app config.Application) (lifecycle.ExitOutcome, error) {
	f.exited = append(f.exited, app.Name)
	if err := f.exitErr[app.Name]; err != nil {
		return lifecycle.CleanupFailed, err
	}
	return lifecycle.ManualCloseDetected, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
applications:
  - name: A
    executablePath: /bin/a
    processName: alpha
  - name: B
    executablePath: /bin/b
    processName: beta
  - name: Disabled
    enabled: false
    executablePath: /bin/d
    processName: delta
`))
	require.NoError(t, err)
	return cfg
}

func TestOnACReconnectStartsOnlyResumable(t *testing.T) {
	ctl := newFakeController()
	ctl.resumable["B"] = true
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnACReconnect(context.Background())

	assert.Equal(t, []string{"B"}, ctl.started, "only marked applications are started")
}

func TestOnACReconnectIsolatesFailures(t *testing.T) {
	ctl := newFakeController()
	ctl.resumable["A"] = true
	ctl.resumable["B"] = true
	ctl.startErr["A"] = errors.New("start failed")
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnACReconnect(context.Background())

	assert.Equal(t, []string{"A", "B"}, ctl.started, "failure of A does not block B")
}

func TestOnBatterySwitchSuspendsAllEnabled(t *testing.T) {
	ctl := newFakeController()
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnBatterySwitch(context.Background())

	assert.Equal(t, []string{"A", "B"}, ctl.suspended, "all enabled applications, no disabled ones")
}

func TestOnBatterySwitchIsolatesFailures(t *testing.T) {
	ctl := newFakeController()
	ctl.suspendErr["A"] = errors.New("stop failed")
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnBatterySwitch(context.Background())

	assert.Equal(t, []string{"A", "B"}, ctl.suspended)
}

func TestOnProcessExitMatchesExactName(t *testing.T) {
	ctl := newFakeController()
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnProcessExit(context.Background(), "beta", 4321)
	assert.Equal(t, []string{"B"}, ctl.exited)

	// No match and disabled applications are silent successes.
	h.OnProcessExit(context.Background(), "unknown", 1)
	h.OnProcessExit(context.Background(), "delta", 2)
	assert.Equal(t, []string{"B"}, ctl.exited)
}

func TestOnExitSweepHandlesOnlyTrackedDeadProcesses(t *testing.T) {
	ctl := newFakeController()
	ctl.tracked["A"] = true
	ctl.tracked["B"] = true
	ctl.alive["B"] = true // still running, nothing to classify

	h := NewHandlers(testConfig(t), ctl, nil, nil)
	h.OnExitSweep(context.Background())

	assert.Equal(t, []string{"A"}, ctl.exited, "only tracked applications with a dead process")
}

func TestOnExitSweepLeavesPendingControlledStops(t *testing.T) {
	ctl := newFakeController()
	ctl.tracked["A"] = true
	ctl.pending["A"] = true // suspended, exit expected, resume pending

	h := NewHandlers(testConfig(t), ctl, nil, nil)
	h.OnExitSweep(context.Background())
	h.OnExitSweep(context.Background())

	assert.Empty(t, ctl.exited, "a dead process under a pending stop is not an observed exit")
}

func TestOnBatterySwitchReconcilesBeforeSuspending(t *testing.T) {
	ctl := newFakeController()
	ctl.tracked["A"] = true // manually closed earlier, exit never observed

	h := NewHandlers(testConfig(t), ctl, nil, nil)
	h.OnBatterySwitch(context.Background())

	assert.Equal(t, []string{"A"}, ctl.exited, "unobserved manual close settled before the suspend pass")
	assert.Equal(t, []string{"A", "B"}, ctl.suspended)
}

func TestOnExitSweepSkipsUntracked(t *testing.T) {
	ctl := newFakeController()
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnExitSweep(context.Background())

	assert.Empty(t, ctl.exited, "idle applications are left alone")
}

func TestOnExitSweepIsolatesLookupFailures(t *testing.T) {
	ctl := newFakeController()
	ctl.tracked["A"] = true
	ctl.tracked["B"] = true
	ctl.lookupErr["A"] = errors.New("process table unavailable")

	h := NewHandlers(testConfig(t), ctl, nil, nil)
	h.OnExitSweep(context.Background())

	assert.Equal(t, []string{"B"}, ctl.exited, "lookup failure of A does not block B")
}

func TestOnProcessExitErrorIsNonFatal(t *testing.T) {
	ctl := newFakeController()
	ctl.exitErr["A"] = errors.New("cleanup failed")
	h := NewHandlers(testConfig(t), ctl, nil, nil)

	h.OnProcessExit(context.Background(), "alpha", 7)
	assert.Equal(t, []string{"A"}, ctl.exited)
}

// scriptedProcess is a one-application process table whose liveness the test
// flips directly.
type scriptedProcess struct {
	name string
	pid  int // 0 means not running
}

func (s *scriptedProcess) FindProcess(ctx context.Context, name string) (int, bool, error) {
	if name != s.name || s.pid == 0 {
		return 0, false, nil
	}
	return s.pid, true, nil
}

func (s *scriptedProcess) IsAlive(ctx context.Context, pid int) (bool, error) {
	return s.pid != 0, nil
}

func (s *scriptedProcess) Start(ctx context.Context, spec process.StartSpec) (int, error) {
	s.pid = 101
	return s.pid, nil
}

func (s *scriptedProcess) RequestStop(ctx context.Context, pid int) error {
	s.pid = 0
	return nil
}

func (s *scriptedProcess) Kill(ctx context.Context, pid int) error {
	s.pid = 0
	return nil
}

// The sweep fires for every process termination on some hosts, so it must be
// able to run any number of times after a controlled suspend without the
// application losing its resume eligibility. Exercises the real controller
// and marker store end to end.
func TestRepeatedSweepsKeepResumeEligibility(t *testing.T) {
	procs := &scriptedProcess{name: "alpha"}
	onAC := true

	store, err := state.NewStore(state.Options{
		Dir:   t.TempDir(),
		Retry: state.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	ctl, err := lifecycle.NewController(lifecycle.Config{
		Store:     store,
		Processes: procs,
		Power: power.ProbeFunc(func(ctx context.Context) (bool, error) {
			return onAC, nil
		}),
		Sleep: func(time.Duration) {},
	})
	require.NoError(t, err)
	cfg := testConfig(t)
	app := cfg.Applications[0]
	h := NewHandlers(cfg, ctl, nil, nil)
	ctx := context.Background()

	outcome, err := ctl.StartApplication(ctx, app)
	require.NoError(t, err)
	require.Equal(t, lifecycle.Started, outcome)

	onAC = false
	h.OnBatterySwitch(ctx)
	require.Zero(t, procs.pid, "process stopped by the suspend")
	require.True(t, ctl.ShouldResume(app))

	h.OnExitSweep(ctx)
	h.OnExitSweep(ctx)
	assert.True(t, ctl.ShouldResume(app), "an unrelated process exit must not be classified as a manual close of A")

	onAC = true
	h.OnACReconnect(ctx)
	assert.NotZero(t, procs.pid, "application resumed on AC reconnect")
	assert.True(t, ctl.ShouldResume(app))
	assert.False(t, ctl.HasPendingStop(app), "resume supersedes the stop token")

	// Now a genuine manual close: the next sweep must unmark it.
	procs.pid = 0
	h.OnExitSweep(ctx)
	assert.False(t, ctl.ShouldResume(app), "manual close detected by the sweep")
}
