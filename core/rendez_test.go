package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/WenchaoChen/libten/core"
)

// TestRendez_SleepWakeup verifies the basic condition hand-shake: waiter
// sleeps, signaler wakes, waiter resumes holding the qutex.
// Given: A waits on the rendez under qutex Q
// When: B locks Q, signals, and unlocks
// Then: Events are observed in order A-wait, B-signal, A-resume
func TestRendez_SleepWakeup(t *testing.T) {
	var q core.Qutex
	var cond core.Rendez
	var events []string

	run(t, func(ctx context.Context) {
		a := core.Spawn(ctx, func(ctx context.Context) {
			q.Lock(ctx)
			events = append(events, "A-wait")
			cond.Sleep(ctx, &q)
			events = append(events, "A-resume")
			q.Unlock(ctx)
		})

		core.Spawn(ctx, func(ctx context.Context) {
			q.Lock(ctx)
			events = append(events, "B-signal")
			cond.Wakeup()
			q.Unlock(ctx)
		})

		if err := a.Join(ctx); err != nil {
			t.Errorf("a.Join = %v", err)
		}
	})

	want := []string{"A-wait", "B-signal", "A-resume"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

// TestRendez_WakeupAll verifies every waiter is released.
func TestRendez_WakeupAll(t *testing.T) {
	var q core.Qutex
	var cond core.Rendez
	woken := 0

	run(t, func(ctx context.Context) {
		var waiters []*core.Task
		for i := 0; i < 3; i++ {
			waiters = append(waiters, core.Spawn(ctx, func(ctx context.Context) {
				q.Lock(ctx)
				cond.Sleep(ctx, &q)
				woken++
				q.Unlock(ctx)
			}))
		}
		core.Yield(ctx) // all three reach the wait
		q.Lock(ctx)
		cond.WakeupAll()
		q.Unlock(ctx)
		for _, w := range waiters {
			if err := w.Join(ctx); err != nil {
				t.Errorf("Join = %v", err)
			}
		}
	})

	if woken != 3 {
		t.Errorf("woken = %d, want 3", woken)
	}
}

// TestRendez_CancelWaiter verifies a canceled waiter unwinds out of Sleep
// with the qutex reacquired, so its deferred unlock stays balanced.
func TestRendez_CancelWaiter(t *testing.T) {
	var q core.Qutex
	var cond core.Rendez

	run(t, func(ctx context.Context) {
		waiter := core.Spawn(ctx, func(ctx context.Context) {
			q.Lock(ctx)
			defer q.Unlock(ctx)
			cond.Sleep(ctx, &q)
			t.Error("Sleep returned normally despite cancel")
		})
		core.Yield(ctx) // waiter reaches the wait
		waiter.Cancel()

		var interrupted *core.TaskInterrupted
		if err := waiter.Join(ctx); !errors.As(err, &interrupted) {
			t.Errorf("waiter.Join = %v, want TaskInterrupted", err)
		}

		// the qutex must be free again after the unwind
		if !q.TryLock(ctx) {
			t.Error("qutex still held after waiter unwound")
		} else {
			q.Unlock(ctx)
		}
	})
}
