package core

import (
	"context"
	"time"
)

// Deadline is a scoped interrupt: while armed, any cancellation point the
// task reaches after d has elapsed throws *DeadlineReached. Use with a
// deferred Cancel so leaving the scope disarms it:
//
//	dl := core.NewDeadline(ctx, 50*time.Millisecond)
//	defer dl.Cancel()
//	core.SleepFor(ctx, time.Second) // panics *DeadlineReached at ~50ms
type Deadline struct {
	t   *Task
	to  *timeout
	err *DeadlineReached
}

// NewDeadline arms a deadline for the calling task at now + d. A negative d
// is a UsageError; a zero d fires at the very next cancellation point.
func NewDeadline(ctx context.Context, d time.Duration) *Deadline {
	t := mustCurrentTask(ctx, "NewDeadline")
	if d < 0 {
		panic(usage("NewDeadline: negative deadline %v", d))
	}
	dl := &Deadline{t: t, err: &DeadlineReached{}}
	dl.to = t.sched.addTimeout(t, t.sched.Now().Add(d), dl.err)
	return dl
}

// Cancel disarms the deadline. Idempotent; must run on the owning task (a
// deferred Cancel in the armed scope). A deadline that already elapsed but
// has not yet been delivered is defused as well: leaving the scope before
// the throw means no throw at all.
func (d *Deadline) Cancel() {
	if d.to != nil {
		d.t.sched.removeTimeout(d.t, d.to)
		d.to = nil
	}
	if d.t.pendingErr == error(d.err) {
		d.t.pendingErr = nil
	}
}

// Remaining returns the time until the deadline fires, zero if it is past
// due or canceled.
func (d *Deadline) Remaining() time.Duration {
	if d.to == nil {
		return 0
	}
	rem := time.Until(d.to.when)
	if rem < 0 {
		return 0
	}
	return rem
}
