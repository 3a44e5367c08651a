package libten

import (
	"context"
	"os"
	"time"

	"github.com/WenchaoChen/libten/core"
)

// Main builds the first scheduler on the calling goroutine, runs entry as the
// root task, and returns the process exit code once all schedulers have
// drained their user tasks.
func Main(entry TaskFunc) int { return core.Main(entry) }

// MainWithConfig is Main with explicit scheduler configuration, inherited by
// schedulers created via SpawnThread.
func MainWithConfig(entry TaskFunc, cfg Config) int { return core.MainWithConfig(entry, cfg) }

// Spawn creates a task on the calling task's scheduler and returns its
// handle.
func Spawn(ctx context.Context, fn TaskFunc) *Task { return core.Spawn(ctx, fn) }

// SpawnSystem creates a system task: one that does not keep its scheduler
// alive once all user tasks are done.
func SpawnSystem(ctx context.Context, fn TaskFunc) *Task { return core.SpawnSystem(ctx, fn) }

// SpawnDetached creates a task nobody waits for. Detached tasks are system
// tasks: the runtime shuts down without them and cancels them on the way out.
func SpawnDetached(ctx context.Context, fn TaskFunc) { core.SpawnSystem(ctx, fn) }

// SpawnThread creates a new scheduler on a new OS-thread-locked goroutine and
// runs fn as its root task.
func SpawnThread(fn TaskFunc) { core.SpawnThread(fn) }

// Shutdown cancels every non-system task on every scheduler.
func Shutdown() { core.Shutdown() }

// Schedulers returns the live schedulers, usable as Migrate targets.
func Schedulers() []*Scheduler { return core.Schedulers() }

// Stats returns a process-wide snapshot of runtime state.
func Stats() RuntimeStats { return core.Stats() }

// DumpOnSignal installs a diagnostic dump of all live tasks on the given
// signal, as a system task on the calling task's scheduler. The registration
// is torn down when the task is canceled or its scheduler drains.
func DumpOnSignal(ctx context.Context, sig os.Signal) *Task {
	return core.DumpOnSignal(ctx, sig)
}

// DumpTasks writes a header line per registered scheduler and one line per
// task (main contexts included) to the given file.
func DumpTasks(f *os.File) { core.DumpTasks(f) }

// Current-task operations. Each resolves the calling task from its context
// and panics with UsageError outside a task.
var (
	Yield       = core.Yield
	TaskID      = core.TaskID
	SetName     = core.SetName
	SetStatus   = core.SetStatus
	CurrentTask = core.CurrentTask
)

// SleepFor suspends the calling task until d past the scheduler's
// loop-cached time (Now). A cancellation point.
func SleepFor(ctx context.Context, d time.Duration) { core.SleepFor(ctx, d) }

// SleepUntil suspends the calling task until when. A cancellation point.
func SleepUntil(ctx context.Context, when time.Time) { core.SleepUntil(ctx, when) }

// Now returns the calling scheduler's loop-cached time.
func Now(ctx context.Context) time.Time { return core.Now(ctx) }

// Migrate moves the calling task to the target scheduler.
func Migrate(ctx context.Context, target *Scheduler) { core.Migrate(ctx, target) }

// NewDeadline arms a scoped deadline for the calling task; pair with a
// deferred Cancel.
func NewDeadline(ctx context.Context, d time.Duration) *Deadline {
	return core.NewDeadline(ctx, d)
}

// FdWait suspends the calling task until fd is ready for the given
// direction, with an optional timeout.
func FdWait(ctx context.Context, fd int, dir IODir, timeout time.Duration) (bool, error) {
	return core.FdWait(ctx, fd, dir, timeout)
}

// IsInterrupt reports whether a recovered panic value is the runtime's
// cancellation unwind marker.
func IsInterrupt(v any) bool { return core.IsInterrupt(v) }
