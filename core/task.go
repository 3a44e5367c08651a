package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is the unit of work: a task body. The context carries the task's
// identity for the current-task API (Yield, SleepFor, ...) and is valid only
// for the lifetime of the task.
type TaskFunc func(ctx context.Context)

// =============================================================================
// Task states
// =============================================================================

type taskState int32

const (
	stateFresh taskState = iota
	stateReady
	stateAsleep
	stateCanceled
	stateUnwinding
	stateFinished
)

var stateNames = [...]string{
	"fresh",
	"ready",
	"asleep",
	"canceled",
	"unwinding",
	"finished",
}

func (s taskState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// =============================================================================
// Task
// =============================================================================

var taskIDCounter atomic.Uint64

// Task is a cooperatively scheduled unit of execution. Tasks are created via
// Scheduler.Spawn (or the libten package helpers) and owned by their
// scheduler; the exported methods are the cross-thread-safe handle surface.
type Task struct {
	id    uint64
	entry TaskFunc
	ctx   execContext

	// sched is the owner scheduler. It changes only via Migrate, and only
	// while the task itself is running, so the task's own suspension points
	// always observe the right owner.
	sched *Scheduler

	state        atomic.Int32
	cancelPoints int32 // touched only by the task's own goroutine
	system       bool

	// isReady coalesces wake-ups: a task is appended to a ready/wake queue
	// only by the waker that flips this false -> true.
	isReady atomic.Bool

	// exited flips when the task's goroutine is about to leave; the
	// dispatcher must never swap into a context with no goroutine behind it.
	exited atomic.Bool

	// timeouts is kept sorted by when; heapIndex is the task's slot in the
	// owner scheduler's timeout index, -1 when absent. Owner thread only.
	timeouts  []*timeout
	heapIndex int

	// pendingErr holds at most one unwind error stored by the scheduler
	// (deadline timers), delivered at the task's next resume.
	pendingErr error

	// fdReady records the outcome of the last poller wait.
	fdReady bool

	taskCtx context.Context

	labelMu sync.Mutex
	name    string
	status  string

	joinMu   sync.Mutex
	joiners  []*Task
	joinDone bool  // set under joinMu when the terminal outcome is published
	outcome  error // terminal outcome, valid once joinDone
}

func newTask(fn TaskFunc, system bool) *Task {
	t := &Task{
		id:        taskIDCounter.Add(1),
		entry:     fn,
		ctx:       newExecContext(),
		system:    system,
		heapIndex: -1,
	}
	t.state.Store(int32(stateFresh))
	t.taskCtx = context.WithValue(context.Background(), currentTaskKey, t)
	return t
}

// newMainTask wraps a scheduler's own context as a pseudo-task so the main
// loop participates in swaps, deadlines, and the current-task API.
func newMainTask() *Task {
	t := &Task{
		id:        taskIDCounter.Add(1),
		ctx:       newExecContext(),
		system:    true,
		heapIndex: -1,
		name:      "main",
	}
	t.state.Store(int32(stateReady))
	t.taskCtx = context.WithValue(context.Background(), currentTaskKey, t)
	return t
}

// ID returns the task's unique id.
func (t *Task) ID() uint64 { return t.id }

// Context returns the context carrying the task's identity. Intended for a
// scheduler's main context (Scheduler.MainContext), which has no body to
// receive it; a normal task body already gets this context as its argument.
func (t *Task) Context() context.Context { return t.taskCtx }

// State returns the task's current state name, for diagnostics.
func (t *Task) State() string { return t.loadState().String() }

func (t *Task) loadState() taskState { return taskState(t.state.Load()) }

// Name returns the task's diagnostic name.
func (t *Task) Name() string {
	t.labelMu.Lock()
	defer t.labelMu.Unlock()
	return t.name
}

// Status returns the task's diagnostic status line.
func (t *Task) Status() string {
	t.labelMu.Lock()
	defer t.labelMu.Unlock()
	return t.status
}

func (t *Task) setName(format string, args ...any) {
	t.labelMu.Lock()
	t.name = fmt.Sprintf(format, args...)
	t.labelMu.Unlock()
}

func (t *Task) setStatus(format string, args ...any) {
	t.labelMu.Lock()
	t.status = fmt.Sprintf(format, args...)
	t.labelMu.Unlock()
}

// =============================================================================
// State machine
// =============================================================================

// transition moves the task along one of the legal state edges, retrying the
// compare-exchange so concurrent cancel requests race safely. It returns
// false when the requested edge is not legal from the current state.
//
// A cancel issued against a fresh task collapses directly to finished: the
// body never runs and there is no stack to unwind.
func (t *Task) transition(to taskState) bool {
	for {
		from := t.loadState()
		target := to
		var valid bool
		switch from {
		case stateFresh:
			if target == stateCanceled {
				target = stateFinished
			}
			valid = target == stateReady || target == stateFinished
		case stateReady:
			valid = target == stateAsleep || target == stateCanceled || target == stateFinished
		case stateAsleep:
			valid = target == stateReady || target == stateCanceled
		case stateCanceled:
			valid = target == stateUnwinding || target == stateFinished
		case stateUnwinding:
			valid = target == stateFinished
		case stateFinished:
			valid = false
		}
		if !valid {
			return false
		}
		if t.state.CompareAndSwap(int32(from), int32(target)) {
			return true
		}
	}
}

// Cancel requests cooperative cancellation. The task observes it at its next
// cancellation point and unwinds via TaskInterrupted. Safe from any
// goroutine; canceling a finished task is a no-op.
func (t *Task) Cancel() {
	if t.transition(stateCanceled) {
		t.sched.ready(t)
	}
}

// =============================================================================
// Cancellation points
// =============================================================================

// enterCancelPoint marks the opening of a cancellation-point scope. Paired
// with exitCancelPoint via defer at every suspension point.
func (t *Task) enterCancelPoint() { t.cancelPoints++ }
func (t *Task) exitCancelPoint()  { t.cancelPoints-- }

// postSwap runs on a task immediately after it is resumed. It delivers
// pending cancellation (exactly once, via the canceled -> unwinding edge) and
// any error stored by a timer.
func (t *Task) postSwap() {
	if t.loadState() == stateCanceled && t.cancelPoints > 0 {
		if t.transition(stateUnwinding) {
			panic(&TaskInterrupted{})
		}
	}
	if err := t.pendingErr; err != nil {
		t.pendingErr = nil
		panic(err)
	}
}

// =============================================================================
// Trampoline
// =============================================================================

// trampoline is the task goroutine's body. The goroutine is created parked;
// the first swap-in lands here, runs the entry function, and the final
// hand-off back to the scheduler never returns control to this frame.
func (t *Task) trampoline() {
	t.ctx.park()

	ran, interrupted := t.runBody()

	if !t.transition(stateFinished) && !ran {
		// canceled while still fresh: the collapse already landed in
		// finished and the body was skipped
		interrupted = true
	}
	var outcome error
	if interrupted {
		outcome = &TaskInterrupted{}
	}
	t.entry = nil

	s := t.sched
	t.exited.Store(true)
	s.removeTask(t)
	t.publishOutcome(outcome)
	s.scheduleExit(t)
	// goroutine exits; the task's stack goes with it
}

// runBody invokes the entry function, absorbing the interrupt marker after
// deferred cleanup has run. Any other panic escaping a task body is fatal to
// the process: tasks must handle their own errors.
func (t *Task) runBody() (ran, interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			if IsInterrupt(r) {
				interrupted = true
				return
			}
			t.sched.cfg.Logger.Error("unhandled panic in task, aborting",
				F("task", t.id), F("name", t.Name()), F("panic", r))
			fatal(fmt.Sprintf("unhandled panic in task %d: %v", t.id, r))
		}
	}()
	if t.transition(stateReady) {
		ran = true
		t.entry(t.taskCtx)
	}
	return ran, false
}

// =============================================================================
// Yield and sleep
// =============================================================================

// yield re-queues the running task at the back of its scheduler's ready
// queue and enters the scheduler. A cancellation point.
func (t *Task) yield() {
	s := t.sched
	s.unsafeReady(t)
	t.enterCancelPoint()
	defer t.exitCancelPoint()
	s.schedule()
}

// sleepUntil parks the task until when. A cancellation point: cancel or a
// deadline wakes the task early and unwinds it, removing the timer on the
// way out.
func (t *Task) sleepUntil(when time.Time) {
	s := t.sched
	t.transition(stateAsleep)
	to := s.addTimeout(t, when, nil)
	t.enterCancelPoint()
	defer t.exitCancelPoint()
	defer func() {
		if r := recover(); r != nil {
			s.removeTimeout(t, to)
			panic(r)
		}
	}()
	s.schedule()
}

// =============================================================================
// Join
// =============================================================================

// Join blocks the calling task until t is finished and returns t's terminal
// outcome: nil for a normal return, TaskInterrupted if it was canceled. A
// cancellation point. Must be called from a task.
func (t *Task) Join(ctx context.Context) error {
	cur := mustCurrentTask(ctx, "Task.Join")
	if cur == t {
		panic(usage("Task.Join: task %d joining itself", t.id))
	}

	t.joinMu.Lock()
	if t.joinDone {
		t.joinMu.Unlock()
		return t.outcome
	}
	t.joiners = append(t.joiners, cur)
	cur.transition(stateAsleep)
	t.joinMu.Unlock()

	cur.enterCancelPoint()
	defer cur.exitCancelPoint()
	defer func() {
		if r := recover(); r != nil {
			t.dropJoiner(cur)
			panic(r)
		}
	}()

	for {
		cur.sched.schedule()
		t.joinMu.Lock()
		done := t.joinDone
		if !done {
			// spurious wake from a cross-thread waker
			cur.transition(stateAsleep)
		}
		t.joinMu.Unlock()
		if done {
			return t.outcome
		}
	}
}

// publishOutcome records the terminal outcome and releases the joiners. The
// outcome write happens before joinDone flips, both under joinMu, so a joiner
// can never observe done without the outcome.
func (t *Task) publishOutcome(outcome error) {
	t.joinMu.Lock()
	t.outcome = outcome
	t.joinDone = true
	joiners := t.joiners
	t.joiners = nil
	t.joinMu.Unlock()
	for _, j := range joiners {
		j.transition(stateReady)
		j.sched.ready(j)
	}
}

func (t *Task) dropJoiner(j *Task) {
	t.joinMu.Lock()
	for i, w := range t.joiners {
		if w == j {
			t.joiners = append(t.joiners[:i], t.joiners[i+1:]...)
			break
		}
	}
	t.joinMu.Unlock()
}
