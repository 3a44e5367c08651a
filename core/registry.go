package core

import (
	"context"
	"runtime"
	"sync"
)

// =============================================================================
// Runtime registry: process-wide list of schedulers
// =============================================================================

type registry struct {
	mu     sync.Mutex
	scheds []*Scheduler
	wg     sync.WaitGroup
}

var processRegistry registry

func (r *registry) register(s *Scheduler) {
	r.mu.Lock()
	r.scheds = append(r.scheds, s)
	r.mu.Unlock()
}

func (r *registry) unregister(s *Scheduler) {
	r.mu.Lock()
	for i, cur := range r.scheds {
		if cur == s {
			r.scheds = append(r.scheds[:i], r.scheds[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *registry) snapshot() []*Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	scheds := make([]*Scheduler, len(r.scheds))
	copy(scheds, r.scheds)
	return scheds
}

// Schedulers returns the live schedulers, for diagnostics and for picking a
// Migrate target.
func Schedulers() []*Scheduler {
	return processRegistry.snapshot()
}

// Shutdown cancels every non-system task on every scheduler. Each scheduler
// then drains and exits on its own; Main returns once they all have.
func Shutdown() {
	for _, s := range processRegistry.snapshot() {
		s.CancelUserTasks()
	}
}

// =============================================================================
// Entry points
// =============================================================================

// Main builds the first scheduler on the calling goroutine, runs entry as the
// root task, and returns the process exit code once every scheduler has
// drained. SIGPIPE is ignored for the process, so broken pipes surface as
// write errors instead of killing it.
func Main(entry TaskFunc) int {
	return MainWithConfig(entry, DefaultConfig())
}

// MainWithConfig is Main with explicit scheduler configuration. The
// configuration also applies to schedulers created by SpawnThread.
func MainWithConfig(entry TaskFunc, cfg Config) int {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	ignoreSigpipe()

	setThreadConfig(cfg)
	s := NewScheduler(cfg)
	processRegistry.register(s)
	s.Spawn(entry)
	s.WaitForAll()
	processRegistry.unregister(s)

	// the main scheduler exiting shuts the process down: cancel the other
	// schedulers' user tasks and wait for their threads
	Shutdown()
	processRegistry.wg.Wait()
	return 0
}

// SpawnThread creates a new scheduler on a new OS-thread-locked goroutine and
// runs fn as its root task. The scheduler exits when its user tasks drain.
// Callable from any goroutine.
func SpawnThread(fn TaskFunc) {
	cfg := threadConfig()
	processRegistry.wg.Add(1)
	go func() {
		defer processRegistry.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		s := NewScheduler(cfg)
		processRegistry.register(s)
		s.Spawn(fn)
		s.WaitForAll()
		processRegistry.unregister(s)
	}()
}

// threadCfg is the configuration Main was started with, inherited by
// SpawnThread schedulers.
var (
	threadCfgMu sync.Mutex
	threadCfg   Config
	threadCfgOK bool
)

func setThreadConfig(cfg Config) {
	threadCfgMu.Lock()
	threadCfg = cfg
	threadCfgOK = true
	threadCfgMu.Unlock()
}

func threadConfig() Config {
	threadCfgMu.Lock()
	defer threadCfgMu.Unlock()
	if !threadCfgOK {
		return DefaultConfig()
	}
	return threadCfg
}

// SpawnThreadFrom is SpawnThread for code already inside a task; it exists so
// call sites read symmetrically with Spawn(ctx, fn).
func SpawnThreadFrom(ctx context.Context, fn TaskFunc) {
	mustCurrentTask(ctx, "SpawnThreadFrom")
	SpawnThread(fn)
}

// RuntimeStats aggregates scheduler snapshots across the process.
type RuntimeStats struct {
	Schedulers  int
	LiveTasks   int64
	UserTasks   int64
	Spawned     uint64
	Finished    uint64
	Interrupted uint64
}

// Stats returns a process-wide snapshot.
func Stats() RuntimeStats {
	var rs RuntimeStats
	for _, s := range processRegistry.snapshot() {
		st := s.Stats()
		rs.Schedulers++
		rs.LiveTasks += st.LiveTasks
		rs.UserTasks += st.UserTasks
		rs.Spawned += st.Spawned
		rs.Finished += st.Finished
		rs.Interrupted += st.Interrupted
	}
	return rs
}
