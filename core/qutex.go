package core

import (
	"context"
	"sync"
	"time"
)

// Qutex is a task-aware mutex: blocked acquirers are tasks, not OS threads.
// An internal OS mutex protects the owner and waiter list across schedulers;
// blocking and hand-off are expressed through the task state machine, which
// stays authoritative.
//
// The zero value is an unlocked qutex.
type Qutex struct {
	mu      sync.Mutex
	owner   *Task
	waiting []*Task
}

// Lock acquires the qutex, suspending the calling task FIFO-fashion behind
// other waiters. Recursive locking is a UsageError. A cancellation point: on
// unwind the caller leaves the waiter list (or hands off ownership it was
// just granted) before the interrupt propagates.
func (q *Qutex) Lock(ctx context.Context) {
	t := mustCurrentTask(ctx, "Qutex.Lock")
	q.mu.Lock()
	if q.owner == t {
		q.mu.Unlock()
		panic(usage("Qutex.Lock: recursive lock by task %d", t.id))
	}
	if q.owner == nil {
		q.owner = t
		q.mu.Unlock()
		return
	}
	q.waiting = append(q.waiting, t)
	t.transition(stateAsleep)
	q.mu.Unlock()

	t.enterCancelPoint()
	defer t.exitCancelPoint()
	defer func() {
		if r := recover(); r != nil {
			q.release(t)
			panic(r)
		}
	}()

	// loop to absorb spurious wakeups from cross-thread wakers
	for {
		t.sched.schedule()
		q.mu.Lock()
		if q.owner == t {
			q.mu.Unlock()
			return
		}
		t.transition(stateAsleep)
		q.mu.Unlock()
	}
}

// TryLock acquires the qutex without blocking, contending for the internal
// mutex opportunistically the way a try operation should.
func (q *Qutex) TryLock(ctx context.Context) bool {
	t := mustCurrentTask(ctx, "Qutex.TryLock")
	if !q.mu.TryLock() {
		return false
	}
	defer q.mu.Unlock()
	if q.owner == nil {
		q.owner = t
		return true
	}
	return false
}

// TryLockFor acquires the qutex, giving up after d. Returns whether the lock
// was acquired. A cancellation point.
func (q *Qutex) TryLockFor(ctx context.Context, d time.Duration) bool {
	t := mustCurrentTask(ctx, "Qutex.TryLockFor")
	s := t.sched

	q.mu.Lock()
	if q.owner == t {
		q.mu.Unlock()
		panic(usage("Qutex.TryLockFor: recursive lock by task %d", t.id))
	}
	if q.owner == nil {
		q.owner = t
		q.mu.Unlock()
		return true
	}
	q.waiting = append(q.waiting, t)
	t.transition(stateAsleep)
	q.mu.Unlock()

	deadline := s.Now().Add(d)
	to := s.addTimeout(t, deadline, nil)

	t.enterCancelPoint()
	defer t.exitCancelPoint()
	defer func() {
		if r := recover(); r != nil {
			q.release(t)
			s.removeTimeout(t, to)
			panic(r)
		}
	}()

	for {
		s.schedule()
		q.mu.Lock()
		if q.owner == t {
			q.mu.Unlock()
			s.removeTimeout(t, to)
			return true
		}
		if !s.Now().Before(deadline) {
			q.removeWaiterLocked(t)
			q.mu.Unlock()
			s.removeTimeout(t, to)
			return false
		}
		t.transition(stateAsleep)
		q.mu.Unlock()
	}
}

// Unlock releases the qutex and hands ownership to the head waiter, if any.
// Unlocking a qutex the caller does not own is a UsageError, except on the
// exception-driven cleanup path (a deferred Unlock running while the task
// unwinds out of Lock), where the caller is silently removed from the waiter
// list instead.
func (q *Qutex) Unlock(ctx context.Context) {
	t := mustCurrentTask(ctx, "Qutex.Unlock")
	q.mu.Lock()
	if q.owner != t {
		if t.loadState() == stateUnwinding {
			q.removeWaiterLocked(t)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		panic(usage("Qutex.Unlock: task %d does not own the qutex", t.id))
	}
	next := q.handOffLocked()
	q.mu.Unlock()
	wakeOwner(next)
}

// release is the unwind-path unlock reached from inside Lock/TryLockFor: the
// caller either still sits in the waiter list or was granted ownership while
// it was being canceled. Mirrors Unlock but tolerates both situations.
func (q *Qutex) release(t *Task) {
	q.mu.Lock()
	if q.owner == t {
		next := q.handOffLocked()
		q.mu.Unlock()
		wakeOwner(next)
		return
	}
	q.removeWaiterLocked(t)
	q.mu.Unlock()
}

// handOffLocked pops the head waiter as the new owner. Called with q.mu held;
// the wake happens after release so the new owner never contends on it.
func (q *Qutex) handOffLocked() *Task {
	if len(q.waiting) == 0 {
		q.owner = nil
		return nil
	}
	next := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.owner = next
	return next
}

func (q *Qutex) removeWaiterLocked(t *Task) {
	for i, w := range q.waiting {
		if w == t {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

func wakeOwner(t *Task) {
	if t == nil {
		return
	}
	t.transition(stateReady)
	t.sched.ready(t)
}
