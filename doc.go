// Package libten is a cooperative task runtime for Go: an M:N scheduling
// core that multiplexes many lightweight tasks onto a small number of
// schedulers, each with its own event loop for timers and I/O readiness and
// its own FIFO ready queue.
//
// # Quick Start
//
// The runtime owns the program from Main onward:
//
//	func main() {
//		os.Exit(libten.Main(func(ctx context.Context) {
//			libten.Spawn(ctx, worker)
//			libten.SleepFor(ctx, time.Second)
//		}))
//	}
//
// # Key Concepts
//
// Task: a cooperatively scheduled unit of execution. A task runs until it
// reaches a suspension point (Yield, SleepFor, Qutex.Lock, Rendez.Sleep,
// FdWait, Join); there is no preemption, so a task that never suspends
// starves its scheduler. Tasks are cheap: each is a parked goroutine, and at
// most one per scheduler runs at any instant.
//
// Scheduler: a per-thread event loop owning its tasks, ready queue, timers,
// and poller. Main creates the first one; SpawnThread creates more, each on
// its own OS-thread-locked goroutine. Tasks never move between schedulers
// except through an explicit Migrate.
//
// Cancellation: Task.Cancel is cooperative. The target observes it at its
// next suspension point (every suspension point is a cancellation point) and
// unwinds by panicking with *TaskInterrupted, so deferred cleanup runs up
// the task's stack before the trampoline absorbs the marker. Deadline arms
// the same mechanism on a timer.
//
// Qutex and Rendez: a task-aware mutex and condition primitive. Blocked
// acquirers are suspended tasks, not OS threads, so a held qutex never stalls
// a scheduler -- only the tasks that want it.
//
// # Thread Safety
//
// Everything a task owns is confined to its scheduler; two tasks on the same
// scheduler never run concurrently, which makes lock-free programming within
// one scheduler the default. Cross-scheduler coordination goes through Qutex,
// Rendez, Task.Cancel, and Task.Join, all safe from any thread.
//
// # Example
//
//	func main() {
//		os.Exit(libten.Main(func(ctx context.Context) {
//			var q libten.Qutex
//			var cond libten.Rendez
//			ready := false
//
//			libten.Spawn(ctx, func(ctx context.Context) {
//				q.Lock(ctx)
//				defer q.Unlock(ctx)
//				ready = true
//				cond.Wakeup()
//			})
//
//			q.Lock(ctx)
//			defer q.Unlock(ctx)
//			for !ready {
//				cond.Sleep(ctx, &q)
//			}
//		}))
//	}
package libten
