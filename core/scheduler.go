package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is a per-thread cooperative event loop. It owns a ready queue, a
// timer index, an optional I/O poller, and all tasks spawned onto it. Exactly
// one context (a task or the scheduler's own main context) runs at a time;
// every structure except wakeq and the explicitly locked fields is touched
// only by that running context.
type Scheduler struct {
	cfg Config

	mainTask *Task
	current  *Task

	readyq readyQueue
	wakeq  wakeQueue

	timeoutIndex timeoutHeap
	timeoutSeq   uint64

	// now is the cached monotonic time, refreshed once per loop iteration.
	now time.Time

	// wakeup protocol state. A thread that readies a task on this scheduler
	// pushes to wakeq and then, under mu: if asleep, clears it and signals
	// wakeCh; if polling, clears it and pokes the poller's self-pipe.
	mu      sync.Mutex
	wakeCh  chan struct{}
	asleep  bool
	polling bool
	pol     *poller

	// alltasks is mutated only on the owner thread; taskMu makes it and the
	// migration hand-in list readable from diagnostic dumps on other threads.
	taskMu        sync.Mutex
	alltasks      []*Task
	pendingAttach []*Task

	userTasks atomic.Int64
	liveTasks atomic.Int64

	spawnedCount     atomic.Uint64
	finishedCount    atomic.Uint64
	interruptedCount atomic.Uint64

	looping bool
}

// NewScheduler creates a scheduler bound to the calling goroutine. The caller
// owns the main context: it must spawn at least one task and then run
// WaitForAll on the same goroutine.
func NewScheduler(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:    cfg,
		readyq: newReadyQueue(),
		wakeCh: make(chan struct{}, 1),
	}
	s.mainTask = newMainTask()
	s.mainTask.sched = s
	s.current = s.mainTask
	s.updateNow()
	return s
}

// MainContext returns the context handle of the scheduler's own main task,
// usable with the current-task API from the owning goroutine.
func (s *Scheduler) MainContext() *Task { return s.mainTask }

// =============================================================================
// Spawn / attach / remove
// =============================================================================

// Spawn creates a task in state fresh and places it directly on the ready
// queue. Must be called from a context running on this scheduler.
func (s *Scheduler) Spawn(fn TaskFunc) *Task { return s.spawn(fn, false) }

// SpawnSystem spawns a task that does not count toward the user-task
// population used for shutdown decisions.
func (s *Scheduler) SpawnSystem(fn TaskFunc) *Task { return s.spawn(fn, true) }

func (s *Scheduler) spawn(fn TaskFunc, system bool) *Task {
	t := newTask(fn, system)
	t.sched = s
	s.attach(t)
	go t.trampoline()
	s.unsafeReady(t)
	s.cfg.Logger.Debug("task spawned", F("task", t.id), F("system", system))
	return t
}

func (s *Scheduler) attach(t *Task) {
	s.taskMu.Lock()
	s.alltasks = append(s.alltasks, t)
	s.taskMu.Unlock()
	if !t.system {
		s.userTasks.Add(1)
	}
	s.liveTasks.Add(1)
	s.spawnedCount.Add(1)
	s.cfg.Metrics.RecordSpawn(t.system)
}

// removeTask detaches a finished task. Runs on the owner thread, from the
// task's own trampoline.
func (s *Scheduler) removeTask(t *Task) {
	s.taskMu.Lock()
	for i, cur := range s.alltasks {
		if cur == t {
			s.alltasks = append(s.alltasks[:i], s.alltasks[i+1:]...)
			break
		}
	}
	s.taskMu.Unlock()
	if !t.system {
		s.userTasks.Add(-1)
	}
	s.liveTasks.Add(-1)
	s.finishedCount.Add(1)
	interrupted := t.outcome != nil
	if interrupted {
		s.interruptedCount.Add(1)
	}
	s.cfg.Metrics.RecordFinish(interrupted)
	s.cfg.Logger.Debug("task finished", F("task", t.id), F("interrupted", interrupted))
}

// =============================================================================
// Ready paths
// =============================================================================

// ready marks a task runnable from any goroutine. Duplicate wake-ups coalesce
// on the task's ready flag; the cross-thread hand-off always goes through the
// wake queue plus the wakeup protocol.
func (s *Scheduler) ready(t *Task) {
	if t.isReady.Swap(true) {
		return
	}
	s.wakeq.push(t)
	s.wakeup()
}

// unsafeReady appends directly to the ready queue. Only from contexts running
// on this scheduler.
func (s *Scheduler) unsafeReady(t *Task) {
	if t.isReady.Swap(true) {
		return
	}
	s.readyq.push(t)
}

// wakeup breaks the scheduler out of its blocking wait, whichever flavor it
// is in. Callers must have already pushed the work the scheduler should see.
func (s *Scheduler) wakeup() {
	s.mu.Lock()
	if s.asleep {
		s.asleep = false
		select {
		case s.wakeCh <- struct{}{}:
		default:
		}
		s.mu.Unlock()
		return
	}
	if s.polling {
		s.polling = false
		p := s.pol
		s.mu.Unlock()
		p.interrupt()
		return
	}
	s.mu.Unlock()
}

// =============================================================================
// The loop
// =============================================================================

// schedule runs one scheduler iteration from the current context: pick the
// next runnable task, swap into it, and on return deliver post-swap work
// (cancellation, timer errors) to the resumed context.
func (s *Scheduler) schedule() {
	self := s.current
	next := s.pickNext()
	if next != self {
		s.current = next
		self.ctx.swap(&next.ctx)
		s.current = self
	}
	self.postSwap()
}

// scheduleExit is the finishing task's final hand-off: pick the next context
// and leave without parking. Never returns control to the caller's frame.
func (s *Scheduler) scheduleExit(t *Task) {
	next := s.pickNext()
	s.current = next
	t.ctx.swapOut(&next.ctx)
}

func (s *Scheduler) pickNext() *Task {
	for {
		if s.looping && s.userTasks.Load() == 0 {
			s.unsafeReady(s.mainTask)
		}
		s.drainWake()
		s.updateNow()
		s.tickTimeouts()
		for {
			t, ok := s.readyq.pop()
			if !ok {
				break
			}
			t.isReady.Store(false)
			if t.exited.Load() {
				// stale wake of a task whose goroutine already left
				continue
			}
			return t
		}
		s.waitForWork()
	}
}

func (s *Scheduler) drainWake() {
	s.adoptPending()
	for _, t := range s.wakeq.drain() {
		s.readyq.push(t)
	}
}

func (s *Scheduler) adoptPending() {
	s.taskMu.Lock()
	pending := s.pendingAttach
	s.pendingAttach = nil
	s.alltasks = append(s.alltasks, pending...)
	s.taskMu.Unlock()
}

func (s *Scheduler) updateNow() {
	s.now = time.Now()
}

// Now returns the loop-cached time. Not precise; refreshed once per
// scheduler iteration.
func (s *Scheduler) Now() time.Time { return s.now }

// waitForWork blocks until some thread readies work or the earliest timer is
// due. With a poller attached the wait happens in the poller (which always
// watches the self-pipe); otherwise on the wake channel.
func (s *Scheduler) waitForWork() {
	bound, hasBound := s.nextTimeout()

	s.mu.Lock()
	if !s.wakeq.empty() {
		s.mu.Unlock()
		return
	}
	if s.pol != nil {
		s.polling = true
		p := s.pol
		s.mu.Unlock()
		p.wait(bound, hasBound)
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
		return
	}
	// drop a stale token from a wake that lost a race with a timer
	select {
	case <-s.wakeCh:
	default:
	}
	s.asleep = true
	s.mu.Unlock()

	var timerC <-chan time.Time
	if hasBound {
		d := time.Until(bound)
		if d < 0 {
			d = 0
		}
		tm := time.NewTimer(d)
		defer tm.Stop()
		timerC = tm.C
	}
	select {
	case <-s.wakeCh:
	case <-timerC:
	}

	s.mu.Lock()
	s.asleep = false
	s.mu.Unlock()
}

// =============================================================================
// Lifecycle
// =============================================================================

// WaitForAll runs the loop on the main context until the scheduler's user
// tasks have drained, then cancels and drains any remaining system tasks.
// Must be called from the goroutine that created the scheduler.
func (s *Scheduler) WaitForAll() {
	if s.current != s.mainTask {
		panic(usage("Scheduler.WaitForAll must run on the scheduler's main context"))
	}
	s.looping = true
	for s.userTasks.Load() > 0 {
		s.schedule()
	}
	s.CancelAll()
	for s.liveTasks.Load() > 0 {
		s.schedule()
	}
	s.looping = false
	s.teardown()
}

// CancelAll cancels every live task on this scheduler. Safe from any
// goroutine.
func (s *Scheduler) CancelAll() {
	for _, t := range s.snapshotTasks() {
		t.Cancel()
	}
}

// CancelUserTasks cancels every non-system task, the shutdown fan-out path.
func (s *Scheduler) CancelUserTasks() {
	for _, t := range s.snapshotTasks() {
		if !t.system {
			t.Cancel()
		}
	}
}

func (s *Scheduler) snapshotTasks() []*Task {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	tasks := make([]*Task, 0, len(s.alltasks)+len(s.pendingAttach))
	tasks = append(tasks, s.alltasks...)
	tasks = append(tasks, s.pendingAttach...)
	return tasks
}

func (s *Scheduler) teardown() {
	s.mu.Lock()
	p := s.pol
	s.pol = nil
	s.mu.Unlock()
	if p != nil {
		p.close()
	}
}

// =============================================================================
// Migration
// =============================================================================

// migrateTo moves the running task t to another scheduler. t leaves this
// scheduler's books before the hand-off, is handed to the target through its
// wake queue, and resumes under the target's serialization. A cancellation
// point.
func (s *Scheduler) migrateTo(t *Task, target *Scheduler) {
	if target == s {
		t.yield()
		return
	}
	s.taskMu.Lock()
	for i, cur := range s.alltasks {
		if cur == t {
			s.alltasks = append(s.alltasks[:i], s.alltasks[i+1:]...)
			break
		}
	}
	s.taskMu.Unlock()
	if !t.system {
		s.userTasks.Add(-1)
	}
	s.liveTasks.Add(-1)

	t.sched = target
	target.adoptRemote(t)

	t.enterCancelPoint()
	defer t.exitCancelPoint()

	// Hand this scheduler to its next context and park. The target may have
	// signaled t's resume channel already; the buffered token makes the two
	// orders equivalent. After the swap t runs under the target scheduler, so
	// nothing here may touch s.
	next := s.pickNext()
	s.current = next
	t.ctx.swap(&next.ctx)
	t.postSwap()
}

// adoptRemote books an in-flight migrating task. The task list entry is
// adopted by the target's loop at its next iteration.
func (s *Scheduler) adoptRemote(t *Task) {
	s.taskMu.Lock()
	s.pendingAttach = append(s.pendingAttach, t)
	s.taskMu.Unlock()
	if !t.system {
		s.userTasks.Add(1)
	}
	s.liveTasks.Add(1)
	s.ready(t)
}

// =============================================================================
// Introspection
// =============================================================================

// SchedulerStats is a point-in-time snapshot of one scheduler.
type SchedulerStats struct {
	LiveTasks   int64
	UserTasks   int64
	Spawned     uint64
	Finished    uint64
	Interrupted uint64
}

func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		LiveTasks:   s.liveTasks.Load(),
		UserTasks:   s.userTasks.Load(),
		Spawned:     s.spawnedCount.Load(),
		Finished:    s.finishedCount.Load(),
		Interrupted: s.interruptedCount.Load(),
	}
}

// EachTask calls fn for the main context and every live task. For
// diagnostics; the snapshot is taken under the task-list lock but states may
// move while fn runs.
func (s *Scheduler) EachTask(fn func(t *Task)) {
	fn(s.mainTask)
	for _, t := range s.snapshotTasks() {
		fn(t)
	}
}
