package core

import (
	"context"
	"time"
)

// =============================================================================
// Current-task API
//
// A task body receives a context carrying its own identity; every operation
// here resolves the calling task from that context. Calling them with any
// other context is a UsageError.
// =============================================================================

type currentTaskKeyType struct{}

var currentTaskKey currentTaskKeyType

// CurrentTask returns the task bound to ctx, or nil when ctx does not belong
// to a task.
func CurrentTask(ctx context.Context) *Task {
	if v := ctx.Value(currentTaskKey); v != nil {
		return v.(*Task)
	}
	return nil
}

func mustCurrentTask(ctx context.Context, op string) *Task {
	t := CurrentTask(ctx)
	if t == nil {
		panic(usage("%s called outside a task", op))
	}
	return t
}

// TaskID returns the calling task's id.
func TaskID(ctx context.Context) uint64 {
	return mustCurrentTask(ctx, "TaskID").id
}

// Yield lets other tasks on the same scheduler run. The caller resumes after
// everything ahead of it in the ready queue has had a turn. A cancellation
// point.
func Yield(ctx context.Context) {
	mustCurrentTask(ctx, "Yield").yield()
}

// SleepFor suspends the calling task until d past the scheduler's
// loop-cached time (Now). That time is refreshed once per loop iteration, so
// a task that computed for a while before calling SleepFor sleeps that much
// less than d in wall time. A cancellation point.
func SleepFor(ctx context.Context, d time.Duration) {
	t := mustCurrentTask(ctx, "SleepFor")
	t.sleepUntil(t.sched.Now().Add(d))
}

// SleepUntil suspends the calling task until the monotonic instant when. A
// cancellation point.
func SleepUntil(ctx context.Context, when time.Time) {
	mustCurrentTask(ctx, "SleepUntil").sleepUntil(when)
}

// SetName labels the calling task for diagnostics.
func SetName(ctx context.Context, format string, args ...any) {
	mustCurrentTask(ctx, "SetName").setName(format, args...)
}

// SetStatus records what the calling task is currently doing, for
// diagnostics.
func SetStatus(ctx context.Context, format string, args ...any) {
	mustCurrentTask(ctx, "SetStatus").setStatus(format, args...)
}

// Now returns the scheduler's loop-cached time: cheap, monotonic-ish, and
// refreshed once per scheduler iteration rather than per call.
func Now(ctx context.Context) time.Time {
	return mustCurrentTask(ctx, "Now").sched.Now()
}

// Spawn creates a task on the calling task's scheduler.
func Spawn(ctx context.Context, fn TaskFunc) *Task {
	return mustCurrentTask(ctx, "Spawn").sched.Spawn(fn)
}

// SpawnSystem creates a system task on the calling task's scheduler. System
// tasks do not keep the scheduler alive.
func SpawnSystem(ctx context.Context, fn TaskFunc) *Task {
	return mustCurrentTask(ctx, "SpawnSystem").sched.SpawnSystem(fn)
}

// Migrate moves the calling task to the target scheduler. The only way a
// task changes owner. A cancellation point.
func Migrate(ctx context.Context, target *Scheduler) {
	t := mustCurrentTask(ctx, "Migrate")
	t.sched.migrateTo(t, target)
}
