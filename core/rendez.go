package core

import (
	"context"
	"sync"
)

// Rendez is the condition-variable analogue whose waiters are tasks. It is
// used together with a Qutex guarding the condition; Sleep atomically moves
// the caller from holding the qutex to the rendez waiter list.
//
// The zero value is ready to use.
type Rendez struct {
	mu      sync.Mutex
	waiting []*Task
}

// Sleep releases q, suspends the caller until another task calls Wakeup or
// WakeupAll, and reacquires q before returning -- on the unwind path too, so
// a deferred Unlock in the caller stays balanced. The caller must hold q. A
// cancellation point.
func (r *Rendez) Sleep(ctx context.Context, q *Qutex) {
	t := mustCurrentTask(ctx, "Rendez.Sleep")

	r.mu.Lock()
	r.waiting = append(r.waiting, t)
	t.transition(stateAsleep)
	r.mu.Unlock()

	q.Unlock(ctx)

	func() {
		t.enterCancelPoint()
		defer t.exitCancelPoint()
		defer func() {
			if rec := recover(); rec != nil {
				r.removeWaiter(t)
				relockAfterUnwind(ctx, q)
				panic(rec)
			}
		}()
		for {
			t.sched.schedule()
			r.mu.Lock()
			woken := !r.contains(t)
			if !woken {
				// spurious wake; go back to waiting
				t.transition(stateAsleep)
			}
			r.mu.Unlock()
			if woken {
				return
			}
		}
	}()

	q.Lock(ctx)
}

// Wakeup readies the head waiter. The caller should hold the qutex the
// condition is guarded by.
func (r *Rendez) Wakeup() {
	r.mu.Lock()
	var t *Task
	if len(r.waiting) > 0 {
		t = r.waiting[0]
		r.waiting = r.waiting[1:]
	}
	r.mu.Unlock()
	wakeOwner(t)
}

// WakeupAll readies every waiter.
func (r *Rendez) WakeupAll() {
	r.mu.Lock()
	waiters := r.waiting
	r.waiting = nil
	r.mu.Unlock()
	for _, t := range waiters {
		wakeOwner(t)
	}
}

func (r *Rendez) removeWaiter(t *Task) {
	r.mu.Lock()
	for i, w := range r.waiting {
		if w == t {
			r.waiting = append(r.waiting[:i], r.waiting[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *Rendez) contains(t *Task) bool {
	for _, w := range r.waiting {
		if w == t {
			return true
		}
	}
	return false
}

// relockAfterUnwind reacquires q while the task is already unwinding. The
// cancel was delivered once; Lock's own cancellation point will not fire
// again, so the reacquisition blocks normally.
func relockAfterUnwind(ctx context.Context, q *Qutex) {
	q.Lock(ctx)
}
